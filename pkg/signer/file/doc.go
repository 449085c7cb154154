/*
Package file stores an Ethereum account key encrypted on the local filesystem.

The secp256k1 private key is sealed with AES-GCM under a key derived from the
passphrase with Argon2id, and written to <dir>/wallet.json with mode 0600.

	s, err := file.CreateFileSystemSigner(dir, []byte("passphrase"))
	if err != nil {
		return err
	}
	opts, err := s.Transactor(chainID)
*/
package file
