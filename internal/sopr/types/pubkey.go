package types

import (
	"errors"
	"fmt"
	"github.com/mr-tron/base58"
	"regexp"
)

// ErrInvalidAddress 地址格式非法，在发起任何网络请求前返回
var ErrInvalidAddress = errors.New("invalid solana address")

// base58 字符集，长度 32~44
var addressPattern = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)

type Pubkey [32]byte

func (p Pubkey) String() string {
	return base58.Encode(p[:])
}

func PubkeyFromBytes(b []byte) (Pubkey, error) {
	if len(b) != 32 {
		return Pubkey{}, fmt.Errorf("invalid pubkey: length = %d, want 32", len(b))
	}
	var pk Pubkey
	copy(pk[:], b)
	return pk, nil
}

func TryPubkeyFromString(s string) (Pubkey, error) {
	data, err := base58.Decode(s)
	if err != nil {
		return Pubkey{}, fmt.Errorf("failed to decode base58 pubkey %q: %w", s, err)
	}
	return PubkeyFromBytes(data)
}

// ValidateAddress 校验 token 地址：先做字符集/长度检查，再确认能解码为 32 字节公钥
func ValidateAddress(s string) (Pubkey, error) {
	if !addressPattern.MatchString(s) {
		return Pubkey{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	pk, err := TryPubkeyFromString(s)
	if err != nil {
		return Pubkey{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return pk, nil
}
