package commands

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/iniwex5/shaiya-go/pkg/filestore"
)

func recordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Read and write checksummed records in a data file",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "append <file> <data-file>",
			Short: "Append the contents of data-file as a record",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				data, err := os.ReadFile(args[1])
				if err != nil {
					return err
				}
				fs, err := filestore.Open(args[0])
				if err != nil {
					return err
				}
				defer fs.Close()
				off, sum, err := fs.Append(data)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "offset %d crc32 %08x\n", off, sum)
				return nil
			},
		},
		&cobra.Command{
			Use:   "read <file> <offset>",
			Short: "Verify and print the record at offset",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				off, err := strconv.ParseInt(args[1], 0, 64)
				if err != nil {
					return err
				}
				fs, err := filestore.Open(args[0])
				if err != nil {
					return err
				}
				defer fs.Close()
				data, err := fs.ReadRecord(off)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			},
		},
	)
	return cmd
}
