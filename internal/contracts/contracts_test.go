package contracts

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

type staticSigner common.Address

func (s staticSigner) Address() common.Address { return common.Address(s) }

// fakeCaller answers eth_call with a fixed uint256 keyed by calldata
type fakeCaller struct {
	results map[string]*big.Int
	last    ethereum.CallMsg
	err     error
}

func (c *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	c.last = msg
	if c.err != nil {
		return nil, c.err
	}
	v, ok := c.results[common.Bytes2Hex(msg.Data)]
	if !ok {
		return nil, errors.New("unexpected call")
	}
	return common.LeftPadBytes(v.Bytes(), 32), nil
}

var (
	signerAddr    = common.HexToAddress("0x36615Cf349d7F6344891B1e7CA7C72883F5dc049")
	tokenAddr     = common.HexToAddress("0x3e7676937A7E96CFB7616f255b9AD9FF47363D4b")
	paymasterAddr = common.HexToAddress("0x5F9D2A1d0E3A1aF4fc1F6D8a2b4A4f0c5B6d7E8F")
	ethFeed       = common.HexToAddress("0x28ce555ee7a3daCdC305951974FcbA59F5BdF09b")
)

const artifactJSON = `{
	"_format": "hh-zksolc-artifact-1",
	"contractName": "Greeter",
	"sourceName": "contracts/Greeter.sol",
	"abi": [
		{"type":"function","name":"greet","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]}
	],
	"bytecode": "0x00"
}`

func TestArtifactRegistry_ABI(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "artifacts-zk/contracts/Greeter.sol/Greeter.json", []byte(artifactJSON), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "artifacts-zk/contracts/Greeter.sol/Greeter.dbg.json", []byte(`{}`), 0o644))

	reg := NewArtifactRegistry(fsys, "artifacts-zk")

	parsed, err := reg.ABI("Greeter")
	require.NoError(t, err)
	require.Contains(t, parsed.Methods, "greet")
	require.NotContains(t, parsed.Methods, "setGreeting")

	// cached result survives removal of the file
	require.NoError(t, fsys.RemoveAll("artifacts-zk"))
	_, err = reg.ABI("Greeter")
	require.NoError(t, err)
}

func TestArtifactRegistry_NotFound(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("artifacts-zk/contracts", 0o755))

	_, err := NewArtifactRegistry(fsys, "artifacts-zk").ABI("MyPaymaster")
	require.ErrorIs(t, err, ErrArtifactNotFound)
}

func TestArtifactRegistry_BadArtifact(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "a/MyERC20.json", []byte(`{"contractName":"MyERC20"}`), 0o644))

	_, err := NewArtifactRegistry(fsys, "a").ABI("MyERC20")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrArtifactNotFound)
}

func TestBuiltinRegistry(t *testing.T) {
	reg := NewBuiltinRegistry()

	for name, method := range map[string]string{
		TokenContract:     "transfer",
		PaymasterContract: "readDapi",
		GreeterContract:   "greet",
	} {
		parsed, err := reg.ABI(name)
		require.NoError(t, err, name)
		require.Contains(t, parsed.Methods, method, name)
	}

	_, err := reg.ABI("Unknown")
	require.ErrorIs(t, err, ErrArtifactNotFound)
}

func TestChain_FallsBack(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "a/Greeter.json", []byte(artifactJSON), 0o644))

	reg := Chain{NewArtifactRegistry(fsys, "a"), NewBuiltinRegistry()}

	greeter, err := reg.ABI(GreeterContract)
	require.NoError(t, err)
	require.NotContains(t, greeter.Methods, "setGreeting", "artifact should win over builtin")

	token, err := reg.ABI(TokenContract)
	require.NoError(t, err)
	require.Contains(t, token.Methods, "balanceOf")

	_, err = reg.ABI("Nope")
	require.ErrorIs(t, err, ErrArtifactNotFound)
}

func TestLocator_Locate(t *testing.T) {
	loc := NewLocator(NewBuiltinRegistry(), staticSigner(signerAddr))

	h, err := loc.Locate(TokenContract, tokenAddr)
	require.NoError(t, err)
	require.Equal(t, tokenAddr, h.Address)
	require.Equal(t, signerAddr, h.Signer)
	require.Equal(t, TokenContract, h.Name)

	_, err = loc.Locate(PaymasterContract, common.Address{})
	require.ErrorIs(t, err, ErrAddressMissing)

	_, err = loc.Locate("Unknown", tokenAddr)
	require.ErrorIs(t, err, ErrArtifactNotFound)
}

func TestERC20_TransferCalldata(t *testing.T) {
	h, err := NewLocator(NewBuiltinRegistry(), staticSigner(signerAddr)).Locate(TokenContract, tokenAddr)
	require.NoError(t, err)

	recipient := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	data, err := NewERC20(h).TransferCalldata(recipient, big.NewInt(5))
	require.NoError(t, err)

	require.Len(t, data, 4+64)
	require.Equal(t, ERC20TransferSelector, data[:4])
	require.Equal(t, common.LeftPadBytes(recipient.Bytes(), 32), data[4:36])
	require.Equal(t, common.LeftPadBytes([]byte{5}, 32), data[36:])
}

func TestERC20_BalanceOf(t *testing.T) {
	h, err := NewLocator(NewBuiltinRegistry(), staticSigner(signerAddr)).Locate(TokenContract, tokenAddr)
	require.NoError(t, err)

	calldata := append(append([]byte{}, ERC20BalanceOfSelector...), common.LeftPadBytes(signerAddr.Bytes(), 32)...)
	caller := &fakeCaller{results: map[string]*big.Int{
		common.Bytes2Hex(calldata): big.NewInt(1_000_000),
	}}

	bal, err := NewERC20(h).BalanceOf(context.Background(), caller, signerAddr)
	require.NoError(t, err)
	require.Equal(t, "1000000", bal.String())
	require.Equal(t, tokenAddr, *caller.last.To)
	require.Equal(t, signerAddr, caller.last.From)
}

func TestPaymaster_ReadDapi(t *testing.T) {
	h, err := NewLocator(NewBuiltinRegistry(), staticSigner(signerAddr)).Locate(PaymasterContract, paymasterAddr)
	require.NoError(t, err)

	pm := NewPaymaster(h)
	calldata, err := pm.Pack("readDapi", ethFeed)
	require.NoError(t, err)
	require.Equal(t, h.ABI.Methods["readDapi"].ID, calldata[:4])

	rate, _ := new(big.Int).SetString("1850000000000000000000", 10)
	caller := &fakeCaller{results: map[string]*big.Int{common.Bytes2Hex(calldata): rate}}

	got, err := pm.ReadDapi(context.Background(), caller, ethFeed)
	require.NoError(t, err)
	require.Equal(t, rate.String(), got.String())

	caller.err = errors.New("connection refused")
	_, err = pm.ReadDapi(context.Background(), caller, ethFeed)
	require.ErrorContains(t, err, "MyPaymaster.readDapi")
}
