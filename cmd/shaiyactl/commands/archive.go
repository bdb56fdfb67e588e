package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/iniwex5/shaiya-go/pkg/filestore"
	"github.com/iniwex5/shaiya-go/pkg/logger"
)

func archiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Inspect and edit SAH/SAF client archives",
	}

	list := &cobra.Command{
		Use:   "list <sah> <saf>",
		Short: "List every file in the archive",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := filestore.OpenArchive(args[0], args[1])
			if err != nil {
				return err
			}
			defer a.Close()
			for _, p := range a.Paths() {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}

	cat := &cobra.Command{
		Use:   "cat <sah> <saf> <path>",
		Short: "Verify and print one file",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := filestore.OpenArchive(args[0], args[1])
			if err != nil {
				return err
			}
			defer a.Close()
			data, err := a.Read(args[2])
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	var create bool
	put := &cobra.Command{
		Use:   "put <sah> <saf> <path> <file>",
		Short: "Store the contents of file at path",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[3])
			if err != nil {
				return err
			}
			m, err := openMutableArchive(args[0], args[1], create)
			if err != nil {
				return err
			}
			if err := m.Write(args[2], data); err != nil {
				_ = m.Close()
				return err
			}
			return m.Close()
		},
	}
	put.Flags().BoolVar(&create, "create", false, "create a new archive, replacing any existing files")

	var createPatched bool
	patch := &cobra.Command{
		Use:   "patch <sah> <saf> <src-sah> <src-saf>",
		Short: "Copy every file of the source archive into the target",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := filestore.OpenArchive(args[2], args[3])
			if err != nil {
				return err
			}
			defer src.Close()
			m, err := openMutableArchive(args[0], args[1], createPatched)
			if err != nil {
				return err
			}
			if err := m.Patch(src); err != nil {
				logger.Error("patch failed", logger.String("target", args[0]), logger.Err(err))
				_ = m.Close()
				return err
			}
			logger.Info("patched archive",
				logger.String("target", args[0]),
				logger.String("source", args[2]),
				logger.Int("files", len(src.Paths())))
			return m.Close()
		},
	}
	patch.Flags().BoolVar(&createPatched, "create", false, "create a new target archive")

	cmd.AddCommand(list, cat, put, patch)
	return cmd
}

func openMutableArchive(sah, saf string, create bool) (*filestore.MutableArchive, error) {
	if create {
		return filestore.CreateMutableArchive(sah, saf)
	}
	return filestore.OpenMutableArchive(sah, saf)
}
