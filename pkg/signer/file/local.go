package file

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/argon2"

	"github.com/evidence-registry/evreg/pkg/signer"
)

// KeyFileName is the name of the encrypted key file inside the key directory.
const KeyFileName = "wallet.json"

// ErrKeyNotFound is returned when no key file exists at the given path.
var ErrKeyNotFound = errors.New("key file not found")

// FileSystemSigner implements a signer that securely stores a secp256k1 key
// on disk and keeps it decrypted in memory only while loaded.
type FileSystemSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	keyFile    string
	mu         sync.RWMutex
}

var _ signer.Signer = (*FileSystemSigner)(nil)

// keyData represents the encrypted key data stored on disk
type keyData struct {
	PrivKeyEncrypted []byte         `json:"priv_key_encrypted"`
	Nonce            []byte         `json:"nonce"`
	Address          common.Address `json:"address"`
	Salt             []byte         `json:"salt"`
}

// KeyFilePath returns the key file location inside keyPath.
func KeyFilePath(keyPath string) string {
	return filepath.Join(keyPath, KeyFileName)
}

// CreateFileSystemSigner generates a new key and saves it encrypted to disk.
func CreateFileSystemSigner(keyPath string, passphrase []byte) (*FileSystemSigner, error) {
	privKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return storeNewKey(keyPath, privKey, passphrase)
}

// ImportFileSystemSigner encrypts an existing hex encoded private key to disk.
func ImportFileSystemSigner(keyPath, privKeyHex string, passphrase []byte) (*FileSystemSigner, error) {
	privKey, err := crypto.HexToECDSA(trimHexPrefix(privKeyHex))
	if err != nil {
		zeroBytes(passphrase)
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return storeNewKey(keyPath, privKey, passphrase)
}

func storeNewKey(keyPath string, privKey *ecdsa.PrivateKey, passphrase []byte) (*FileSystemSigner, error) {
	defer zeroBytes(passphrase)

	filePath := KeyFilePath(keyPath)

	if err := os.MkdirAll(filepath.Dir(filePath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	if _, err := os.Stat(filePath); err == nil {
		return nil, fmt.Errorf("key file already exists at %s", filePath)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to check key file status: %w", err)
	}

	s := &FileSystemSigner{
		privateKey: privKey,
		address:    crypto.PubkeyToAddress(privKey.PublicKey),
		keyFile:    filePath,
	}

	if err := s.saveKey(passphrase); err != nil {
		_ = os.Remove(filePath)
		return nil, fmt.Errorf("failed to save key: %w", err)
	}

	return s, nil
}

// LoadFileSystemSigner loads and decrypts an existing key file.
func LoadFileSystemSigner(keyPath string, passphrase []byte) (*FileSystemSigner, error) {
	defer zeroBytes(passphrase)

	filePath := KeyFilePath(keyPath)

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w at %s", ErrKeyNotFound, filePath)
	} else if err != nil {
		return nil, fmt.Errorf("failed to check key file status: %w", err)
	}

	s := &FileSystemSigner{keyFile: filePath}
	if err := s.loadKey(passphrase); err != nil {
		return nil, err
	}
	return s, nil
}

// ReadAddress returns the account stored in a key file without decrypting it.
func ReadAddress(keyPath string) (common.Address, error) {
	jsonData, err := os.ReadFile(KeyFilePath(keyPath))
	if os.IsNotExist(err) {
		return common.Address{}, fmt.Errorf("%w at %s", ErrKeyNotFound, KeyFilePath(keyPath))
	} else if err != nil {
		return common.Address{}, fmt.Errorf("failed to read key file: %w", err)
	}
	var data keyData
	if err := json.Unmarshal(jsonData, &data); err != nil {
		return common.Address{}, fmt.Errorf("failed to unmarshal key data: %w", err)
	}
	return data.Address, nil
}

func (s *FileSystemSigner) saveKey(passphrase []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.privateKey == nil {
		return fmt.Errorf("key not initialized")
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}

	privKeyBytes := crypto.FromECDSA(s.privateKey)
	defer zeroBytes(privKeyBytes)

	derivedKey := deriveKeyArgon2(passphrase, salt, 32)
	defer zeroBytes(derivedKey)

	gcm, err := newGCM(derivedKey)
	if err != nil {
		return err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	data := keyData{
		// The address is bound as associated data so it cannot be swapped in the file.
		PrivKeyEncrypted: gcm.Seal(nil, nonce, privKeyBytes, s.address.Bytes()),
		Nonce:            nonce,
		Address:          s.address,
		Salt:             salt,
	}

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal key data: %w", err)
	}

	if err := os.WriteFile(s.keyFile, jsonData, 0600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}

func (s *FileSystemSigner) loadKey(passphrase []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jsonData, err := os.ReadFile(s.keyFile)
	if err != nil {
		return fmt.Errorf("failed to read key file: %w", err)
	}

	var data keyData
	if err := json.Unmarshal(jsonData, &data); err != nil {
		return fmt.Errorf("failed to unmarshal key data: %w", err)
	}
	if len(data.Salt) == 0 {
		return fmt.Errorf("key file %s has no salt", s.keyFile)
	}

	derivedKey := deriveKeyArgon2(passphrase, data.Salt, 32)
	defer zeroBytes(derivedKey)

	gcm, err := newGCM(derivedKey)
	if err != nil {
		return err
	}

	privKeyBytes, err := gcm.Open(nil, data.Nonce, data.PrivKeyEncrypted, data.Address.Bytes())
	if err != nil {
		return fmt.Errorf("failed to decrypt private key (wrong passphrase?): %w", err)
	}
	defer zeroBytes(privKeyBytes)

	privKey, err := crypto.ToECDSA(privKeyBytes)
	if err != nil {
		return fmt.Errorf("failed to unmarshal private key: %w", err)
	}

	address := crypto.PubkeyToAddress(privKey.PublicKey)
	if address != data.Address {
		return fmt.Errorf("key file address %s does not match key %s", data.Address, address)
	}

	s.privateKey = privKey
	s.address = address
	return nil
}

// Address implements signer.Signer.
func (s *FileSystemSigner) Address() (common.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.privateKey == nil {
		return common.Address{}, fmt.Errorf("private key not loaded")
	}
	return s.address, nil
}

// Transactor implements signer.Signer.
func (s *FileSystemSigner) Transactor(chainID *big.Int) (*bind.TransactOpts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.privateKey == nil {
		return nil, fmt.Errorf("private key not loaded")
	}
	return bind.NewKeyedTransactorWithChainID(s.privateKey, chainID)
}

// SignHash implements signer.Signer.
func (s *FileSystemSigner) SignHash(hash []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.privateKey == nil {
		return nil, fmt.Errorf("private key not loaded")
	}
	return crypto.Sign(hash, s.privateKey)
}

// ExportPrivateKey returns the 0x prefixed hex private key.
func (s *FileSystemSigner) ExportPrivateKey() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.privateKey == nil {
		return "", fmt.Errorf("private key not loaded")
	}
	return hexutil.Encode(crypto.FromECDSA(s.privateKey)), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// deriveKeyArgon2 uses Argon2id with time=3, memory=32MB, threads=4.
func deriveKeyArgon2(passphrase, salt []byte, keyLen uint32) []byte {
	return argon2.IDKey(passphrase, salt, 3, 32*1024, 4, keyLen)
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// zeroBytes overwrites a byte slice with zeros
func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
