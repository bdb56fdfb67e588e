package packet

import (
	"encoding/binary"
	"fmt"
)

const (
	UsernameLen = 32
	PasswordLen = 19

	loginRequestLen = UsernameLen + PasswordLen
	loginSuccessLen = 1 + 4 + 1 + 16
	loginFailureLen = 1
)

type LoginRequest struct {
	Username string
	Password string
}

func (*LoginRequest) Opcode() Opcode { return OpLogin }

func (p *LoginRequest) Encode() ([]byte, error) {
	buf := make([]byte, loginRequestLen)
	if err := putString(buf[:UsernameLen], p.Username); err != nil {
		return nil, fmt.Errorf("username: %w", err)
	}
	if err := putString(buf[UsernameLen:], p.Password); err != nil {
		return nil, fmt.Errorf("password: %w", err)
	}
	return buf, nil
}

func decodeLoginRequest(body []byte) (*LoginRequest, error) {
	if len(body) != loginRequestLen {
		return nil, fmt.Errorf("%w: login request is %d bytes", ErrMalformed, len(body))
	}
	return &LoginRequest{
		Username: getString(body[:UsernameLen]),
		Password: getString(body[UsernameLen:]),
	}, nil
}

// LoginStatus is the first byte of a login response.
type LoginStatus uint8

const (
	LoginSuccess             LoginStatus = 0
	LoginAccountDoesNotExist LoginStatus = 1
	LoginCannotConnect       LoginStatus = 2
	LoginInvalidCredentials  LoginStatus = 3
	LoginAccountDisabled     LoginStatus = 10
)

func (s LoginStatus) String() string {
	switch s {
	case LoginSuccess:
		return "success"
	case LoginAccountDoesNotExist:
		return "account does not exist"
	case LoginCannotConnect:
		return "cannot connect"
	case LoginInvalidCredentials:
		return "invalid credentials"
	case LoginAccountDisabled:
		return "account disabled"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// LoginResponse answers a LoginRequest. UserID, Privilege and Identity
// are only on the wire when Status is LoginSuccess.
type LoginResponse struct {
	Status    LoginStatus
	UserID    uint32
	Privilege uint8
	Identity  [16]byte
}

func (*LoginResponse) Opcode() Opcode { return OpLogin }

func (p *LoginResponse) Encode() ([]byte, error) {
	if p.Status != LoginSuccess {
		return []byte{byte(p.Status)}, nil
	}
	buf := make([]byte, loginSuccessLen)
	buf[0] = byte(LoginSuccess)
	binary.LittleEndian.PutUint32(buf[1:5], p.UserID)
	buf[5] = p.Privilege
	copy(buf[6:], p.Identity[:])
	return buf, nil
}

func decodeLoginResponse(body []byte) (*LoginResponse, error) {
	if len(body) < loginFailureLen {
		return nil, fmt.Errorf("%w: empty login response", ErrMalformed)
	}
	status := LoginStatus(body[0])
	switch status {
	case LoginSuccess:
		if len(body) != loginSuccessLen {
			return nil, fmt.Errorf("%w: login success is %d bytes", ErrMalformed, len(body))
		}
		p := &LoginResponse{
			Status:    LoginSuccess,
			UserID:    binary.LittleEndian.Uint32(body[1:5]),
			Privilege: body[5],
		}
		copy(p.Identity[:], body[6:])
		return p, nil
	case LoginAccountDoesNotExist, LoginInvalidCredentials, LoginAccountDisabled:
		return &LoginResponse{Status: status}, nil
	}
	// Unknown failure codes are reported as a connection problem.
	return &LoginResponse{Status: LoginCannotConnect}, nil
}
