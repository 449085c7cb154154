package contract

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// RegistryABI is the input ABI of the evidence registry contract.
const RegistryABI = `[
	{"type":"function","name":"addEvidence","stateMutability":"nonpayable","inputs":[{"name":"_caseId","type":"string"},{"name":"_description","type":"string"},{"name":"_ipfsHash","type":"string"}],"outputs":[]},
	{"type":"function","name":"getEvidence","stateMutability":"view","inputs":[{"name":"_id","type":"uint256"}],"outputs":[{"name":"id","type":"uint256"},{"name":"caseId","type":"string"},{"name":"description","type":"string"},{"name":"ipfsHash","type":"string"},{"name":"uploadedBy","type":"address"},{"name":"timestamp","type":"uint256"}]},
	{"type":"function","name":"evidenceCount","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"grantPoliceRole","stateMutability":"nonpayable","inputs":[{"name":"_account","type":"address"}],"outputs":[]},
	{"type":"function","name":"grantCourtOfficialRole","stateMutability":"nonpayable","inputs":[{"name":"_account","type":"address"}],"outputs":[]},
	{"type":"function","name":"revokePoliceRole","stateMutability":"nonpayable","inputs":[{"name":"_account","type":"address"}],"outputs":[]},
	{"type":"function","name":"revokeCourtOfficialRole","stateMutability":"nonpayable","inputs":[{"name":"_account","type":"address"}],"outputs":[]},
	{"type":"function","name":"isPolice","stateMutability":"view","inputs":[{"name":"_account","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"isCourtOfficial","stateMutability":"view","inputs":[{"name":"_account","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]}
]`

// RegistryMetaData contains all meta data concerning the Registry contract.
var RegistryMetaData = &bind.MetaData{
	ABI: RegistryABI,
}

// ParsedABI returns the parsed registry ABI.
func ParsedABI() (*abi.ABI, error) {
	return RegistryMetaData.GetAbi()
}

// RawEvidence is the getEvidence return tuple as the ABI decoder produces it.
type RawEvidence struct {
	Id          *big.Int
	CaseId      string
	Description string
	IpfsHash    string
	UploadedBy  common.Address
	Timestamp   *big.Int
}

// Registry is a binding to a deployed evidence registry contract.
type Registry struct {
	address  common.Address
	contract *bind.BoundContract
}

// NewRegistry binds the contract at address using backend for calls and transactions.
func NewRegistry(address common.Address, backend bind.ContractBackend) (*Registry, error) {
	parsed, err := RegistryMetaData.GetAbi()
	if err != nil {
		return nil, err
	}
	if parsed == nil {
		return nil, errors.New("GetABI returned nil")
	}
	return &Registry{
		address:  address,
		contract: bind.NewBoundContract(address, *parsed, backend, backend, backend),
	}, nil
}

// Address returns the bound contract address.
func (r *Registry) Address() common.Address {
	return r.address
}

// Owner is a free data retrieval call binding the contract method 0x8da5cb5b.
//
// Solidity: function owner() view returns(address)
func (r *Registry) Owner(opts *bind.CallOpts) (common.Address, error) {
	var out []interface{}
	if err := r.contract.Call(opts, &out, "owner"); err != nil {
		return common.Address{}, err
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

// IsPolice is a free data retrieval call.
//
// Solidity: function isPolice(address _account) view returns(bool)
func (r *Registry) IsPolice(opts *bind.CallOpts, account common.Address) (bool, error) {
	return r.callBool(opts, "isPolice", account)
}

// IsCourtOfficial is a free data retrieval call.
//
// Solidity: function isCourtOfficial(address _account) view returns(bool)
func (r *Registry) IsCourtOfficial(opts *bind.CallOpts, account common.Address) (bool, error) {
	return r.callBool(opts, "isCourtOfficial", account)
}

func (r *Registry) callBool(opts *bind.CallOpts, method string, account common.Address) (bool, error) {
	var out []interface{}
	if err := r.contract.Call(opts, &out, method, account); err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

// EvidenceCount is a free data retrieval call.
//
// Solidity: function evidenceCount() view returns(uint256)
func (r *Registry) EvidenceCount(opts *bind.CallOpts) (*big.Int, error) {
	var out []interface{}
	if err := r.contract.Call(opts, &out, "evidenceCount"); err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// GetEvidence is a free data retrieval call.
//
// Solidity: function getEvidence(uint256 _id) view returns(uint256 id, string caseId, string description, string ipfsHash, address uploadedBy, uint256 timestamp)
func (r *Registry) GetEvidence(opts *bind.CallOpts, id *big.Int) (RawEvidence, error) {
	var out []interface{}
	if err := r.contract.Call(opts, &out, "getEvidence", id); err != nil {
		return RawEvidence{}, err
	}
	return RawEvidence{
		Id:          *abi.ConvertType(out[0], new(*big.Int)).(**big.Int),
		CaseId:      *abi.ConvertType(out[1], new(string)).(*string),
		Description: *abi.ConvertType(out[2], new(string)).(*string),
		IpfsHash:    *abi.ConvertType(out[3], new(string)).(*string),
		UploadedBy:  *abi.ConvertType(out[4], new(common.Address)).(*common.Address),
		Timestamp:   *abi.ConvertType(out[5], new(*big.Int)).(**big.Int),
	}, nil
}

// AddEvidence is a paid mutator transaction.
//
// Solidity: function addEvidence(string _caseId, string _description, string _ipfsHash) returns()
func (r *Registry) AddEvidence(opts *bind.TransactOpts, caseID, description, ipfsHash string) (*types.Transaction, error) {
	return r.contract.Transact(opts, "addEvidence", caseID, description, ipfsHash)
}

// GrantPoliceRole is a paid mutator transaction.
//
// Solidity: function grantPoliceRole(address _account) returns()
func (r *Registry) GrantPoliceRole(opts *bind.TransactOpts, account common.Address) (*types.Transaction, error) {
	return r.contract.Transact(opts, "grantPoliceRole", account)
}

// GrantCourtOfficialRole is a paid mutator transaction.
//
// Solidity: function grantCourtOfficialRole(address _account) returns()
func (r *Registry) GrantCourtOfficialRole(opts *bind.TransactOpts, account common.Address) (*types.Transaction, error) {
	return r.contract.Transact(opts, "grantCourtOfficialRole", account)
}

// RevokePoliceRole is a paid mutator transaction.
//
// Solidity: function revokePoliceRole(address _account) returns()
func (r *Registry) RevokePoliceRole(opts *bind.TransactOpts, account common.Address) (*types.Transaction, error) {
	return r.contract.Transact(opts, "revokePoliceRole", account)
}

// RevokeCourtOfficialRole is a paid mutator transaction.
//
// Solidity: function revokeCourtOfficialRole(address _account) returns()
func (r *Registry) RevokeCourtOfficialRole(opts *bind.TransactOpts, account common.Address) (*types.Transaction, error) {
	return r.contract.Transact(opts, "revokeCourtOfficialRole", account)
}

// MethodName resolves calldata to the registry method it invokes, or "".
func MethodName(data []byte) string {
	if len(data) < 4 {
		return ""
	}
	parsed, err := ParsedABI()
	if err != nil {
		return ""
	}
	m, err := parsed.MethodById(data[:4])
	if err != nil {
		return ""
	}
	return m.Name
}
