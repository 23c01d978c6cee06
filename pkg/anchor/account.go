package anchor

import (
	"bytes"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/fortiblox/anchorsvm/pkg/accounts"
)

// AccountState is typed account data that knows its discriminator.
type AccountState interface {
	bin.BinaryUnmarshaler
	Discriminator() Discriminator
}

// AccountData is typed account data that can be written back.
type AccountData interface {
	bin.BinaryMarshaler
	Discriminator() Discriminator
}

// DecodeAccount checks that data starts with dst's discriminator and
// decodes the rest into dst. Bytes past the decoded value are ignored,
// since accounts are often allocated larger than their content.
func DecodeAccount(data []byte, dst AccountState) error {
	want := dst.Discriminator()
	if len(data) < DiscriminatorLength {
		return &AccountError{Err: fmt.Errorf("%w: data is %d bytes", ErrDiscriminatorMismatch, len(data))}
	}
	if !bytes.Equal(data[:DiscriminatorLength], want[:]) {
		return &AccountError{Err: fmt.Errorf("%w: expected %s, got %x",
			ErrDiscriminatorMismatch, want, data[:DiscriminatorLength])}
	}
	return decodeBody(data, dst)
}

// DecodeAccountUnchecked skips the 8-byte prefix without checking it and
// decodes the rest into dst.
func DecodeAccountUnchecked(data []byte, dst bin.BinaryUnmarshaler) error {
	if len(data) < DiscriminatorLength {
		return &AccountError{Err: fmt.Errorf("%w: data is %d bytes", ErrDeserializationFailed, len(data))}
	}
	return decodeBody(data, dst)
}

func decodeBody(data []byte, dst bin.BinaryUnmarshaler) error {
	if err := dst.UnmarshalWithDecoder(bin.NewBorshDecoder(data[DiscriminatorLength:])); err != nil {
		return &AccountError{Err: fmt.Errorf("%w: %v", ErrDeserializationFailed, err)}
	}
	return nil
}

// EncodeAccount returns v's discriminator followed by its Borsh encoding.
func EncodeAccount(v AccountData) ([]byte, error) {
	body, err := EncodeArgs(v)
	if err != nil {
		return nil, err
	}
	disc := v.Discriminator()
	return append(disc[:], body...), nil
}

// GetAnchorAccount reads the account at address and decodes it into dst
// after checking its discriminator.
func (c *Context) GetAnchorAccount(address solana.PublicKey, dst AccountState) error {
	data, err := c.accountData(address)
	if err != nil {
		return err
	}
	return withAddress(address, DecodeAccount(data, dst))
}

// GetAnchorAccountUnchecked reads the account at address and decodes it
// into dst without checking its discriminator.
func (c *Context) GetAnchorAccountUnchecked(address solana.PublicKey, dst bin.BinaryUnmarshaler) error {
	data, err := c.accountData(address)
	if err != nil {
		return err
	}
	return withAddress(address, DecodeAccountUnchecked(data, dst))
}

func (c *Context) accountData(address solana.PublicKey) ([]byte, error) {
	acc, err := c.env.GetAccount(address)
	switch {
	case errors.Is(err, accounts.ErrAccountNotFound):
		return nil, &AccountError{Address: address, Err: ErrAccountNotFound}
	case err != nil:
		return nil, &AccountError{Address: address, Err: err}
	}
	return acc.Data, nil
}

func withAddress(address solana.PublicKey, err error) error {
	var accErr *AccountError
	if errors.As(err, &accErr) {
		accErr.Address = address
	}
	return err
}

// SetAnchorAccount stores v at address as a rent-exempt account owned by
// the program under test.
func (c *Context) SetAnchorAccount(address solana.PublicKey, v AccountData) error {
	data, err := EncodeAccount(v)
	if err != nil {
		return fmt.Errorf("encode account %s: %w", address, err)
	}
	return c.env.SetAccount(address, &accounts.Account{
		Lamports: c.env.MinimumBalanceForRentExemption(uint64(len(data))),
		Data:     data,
		Owner:    c.programID,
	})
}
