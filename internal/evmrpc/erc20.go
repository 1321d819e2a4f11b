package evmrpc

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"dexdash-backend/internal/apperr"
)

// 4-byte selectors for the ERC20 read surface the dashboard needs.
var (
	selBalanceOf = []byte{0x70, 0xa0, 0x82, 0x31} // balanceOf(address)
	selDecimals  = []byte{0x31, 0x3c, 0xe5, 0x67} // decimals()
	selSymbol    = []byte{0x95, 0xd8, 0x9b, 0x41} // symbol()
	selName      = []byte{0x06, 0xfd, 0xde, 0x03} // name()
)

func packAddressArg(sel []byte, addr common.Address) []byte {
	data := make([]byte, 0, 4+32)
	data = append(data, sel...)
	data = append(data, common.LeftPadBytes(addr.Bytes(), 32)...)
	return data
}

// ERC20BalanceOf reads balanceOf(wallet) on the given token contract.
func (p *Pool) ERC20BalanceOf(ctx context.Context, chainID int64, token, wallet string) (*big.Int, error) {
	if !common.IsHexAddress(wallet) {
		return nil, apperr.Validation("malformed address %q", wallet)
	}
	data := packAddressArg(selBalanceOf, common.HexToAddress(wallet))
	out, err := p.CallContract(ctx, chainID, token, data)
	if err != nil {
		return nil, err
	}
	return decodeUint256(out)
}

// ERC20Decimals reads decimals() on the given token contract.
func (p *Pool) ERC20Decimals(ctx context.Context, chainID int64, token string) (uint8, error) {
	out, err := p.CallContract(ctx, chainID, token, selDecimals)
	if err != nil {
		return 0, err
	}
	n, err := decodeUint256(out)
	if err != nil {
		return 0, err
	}
	if !n.IsUint64() || n.Uint64() > 255 {
		return 0, apperr.Provider(nil, "decimals out of range for token %s", token)
	}
	return uint8(n.Uint64()), nil
}

// ERC20Symbol reads symbol() on the given token contract.
func (p *Pool) ERC20Symbol(ctx context.Context, chainID int64, token string) (string, error) {
	out, err := p.CallContract(ctx, chainID, token, selSymbol)
	if err != nil {
		return "", err
	}
	return decodeString(out)
}

// ERC20Name reads name() on the given token contract.
func (p *Pool) ERC20Name(ctx context.Context, chainID int64, token string) (string, error) {
	out, err := p.CallContract(ctx, chainID, token, selName)
	if err != nil {
		return "", err
	}
	return decodeString(out)
}

func decodeUint256(out []byte) (*big.Int, error) {
	if len(out) < 32 {
		return nil, apperr.Provider(nil, "short uint256 return (%d bytes)", len(out))
	}
	return new(big.Int).SetBytes(out[:32]), nil
}

// decodeString handles both the standard ABI dynamic string encoding and the
// bytes32 form some older tokens use for symbol/name.
func decodeString(out []byte) (string, error) {
	if len(out) == 32 {
		return strings.TrimRight(string(out), "\x00"), nil
	}
	if len(out) < 64 {
		return "", apperr.Provider(nil, "short string return (%d bytes)", len(out))
	}
	offset := new(big.Int).SetBytes(out[:32])
	if !offset.IsInt64() || offset.Int64()+32 > int64(len(out)) {
		return "", apperr.Provider(nil, "malformed string offset")
	}
	start := offset.Int64()
	length := new(big.Int).SetBytes(out[start : start+32])
	if !length.IsInt64() || start+32+length.Int64() > int64(len(out)) {
		return "", apperr.Provider(nil, "malformed string length")
	}
	return string(out[start+32 : start+32+length.Int64()]), nil
}
