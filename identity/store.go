package identity

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// KeyStore is a local-first filesystem keystore.
//
// Layout: <directory>/<name>/identity.key holds the root seed, and
// <directory>/<name>/devices/<device>.key holds derived device seeds.
// Seeds are stored as hex, one per file, mode 0600.
type KeyStore struct {
	Directory string
}

type KeyEntry struct {
	Name    string
	Devices []string
}

func GetDefaultDirectory() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".humanity", "keys"), nil
}

func OpenKeyStore(directory string) (*KeyStore, error) {
	if directory == "" {
		var err error
		directory, err = GetDefaultDirectory()
		if err != nil {
			return nil, err
		}
	}
	return &KeyStore{Directory: directory}, nil
}

func (ks *KeyStore) rootKeyPath(name string) string {
	return filepath.Join(ks.Directory, name, "identity.key")
}

func (ks *KeyStore) deviceKeyPath(name, device string) string {
	return filepath.Join(ks.Directory, name, "devices", device+".key")
}

func CheckKeyName(name string) error {
	if name == "" {
		return errors.New("identity name cannot be empty")
	}
	for _, char := range name {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9') || char == '-' || char == '_' {
			continue
		}
		return fmt.Errorf("invalid character %q in identity name", char)
	}
	return nil
}

func CheckDeviceName(device string) error {
	if device == "" {
		return errors.New("device name cannot be empty")
	}
	for _, char := range device {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9') || char == '-' || char == '_' {
			continue
		}
		return fmt.Errorf("invalid character %q in device name", char)
	}
	return nil
}

func ParseSeedHex(seedHex string) ([]byte, error) {
	seedHex = strings.TrimSpace(seedHex)
	seedHex = strings.TrimPrefix(seedHex, "0x")
	data, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, err
	}
	if len(data) != ed25519.SeedSize {
		return nil, fmt.Errorf("expected seed length of %d bytes, got %d", ed25519.SeedSize, len(data))
	}
	return data, nil
}

func (ks *KeyStore) saveSeedToFile(filePath string, seed []byte, overwrite bool) error {
	if len(seed) != ed25519.SeedSize {
		return fmt.Errorf("expected seed length of %d bytes", ed25519.SeedSize)
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0o700); err != nil {
		return err
	}
	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	file, err := os.OpenFile(filePath, flags, 0o600)
	if err != nil {
		return err
	}
	defer file.Close()
	if _, err := file.WriteString(hex.EncodeToString(seed) + "\n"); err != nil {
		return err
	}
	return file.Close()
}

func (ks *KeyStore) loadSeedFromFile(filePath string) ([]byte, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return ParseSeedHex(strings.TrimSpace(string(data)))
}

// InitializeIdentity stores seed as the root key for name and returns the
// hex public key and the file path written.
func (ks *KeyStore) InitializeIdentity(name string, seed []byte, overwrite bool) (publicKey string, filePath string, err error) {
	if err := CheckKeyName(name); err != nil {
		return "", "", err
	}
	filePath = ks.rootKeyPath(name)
	if err := ks.saveSeedToFile(filePath, seed, overwrite); err != nil {
		return "", "", err
	}
	publicKey, err = PublicString(seed)
	if err != nil {
		return "", "", err
	}
	return publicKey, filePath, nil
}

// DeriveDeviceKey derives and stores a device key under name.
func (ks *KeyStore) DeriveDeviceKey(name, device string, overwrite bool) (publicKey string, filePath string, err error) {
	if err := CheckKeyName(name); err != nil {
		return "", "", err
	}
	rootSeed, err := ks.loadSeedFromFile(ks.rootKeyPath(name))
	if err != nil {
		return "", "", err
	}
	deviceSeed, err := DeriveDeviceSeed(rootSeed, device)
	if err != nil {
		return "", "", err
	}
	filePath = ks.deviceKeyPath(name, device)
	if err := ks.saveSeedToFile(filePath, deviceSeed, overwrite); err != nil {
		return "", "", err
	}
	publicKey, err = PublicString(deviceSeed)
	if err != nil {
		return "", "", err
	}
	return publicKey, filePath, nil
}

// ExportPublicKey returns the hex public key for a stored identity or device.
func (ks *KeyStore) ExportPublicKey(name, device string) (string, error) {
	if err := CheckKeyName(name); err != nil {
		return "", err
	}
	var seed []byte
	var err error
	if device == "" {
		seed, err = ks.loadSeedFromFile(ks.rootKeyPath(name))
	} else {
		if err := CheckDeviceName(device); err != nil {
			return "", err
		}
		seed, err = ks.loadSeedFromFile(ks.deviceKeyPath(name, device))
	}
	if err != nil {
		return "", err
	}
	return PublicString(seed)
}

// LoadSeed resolves a signing seed from, in order of preference: a literal
// hex seed, an explicit key file, or a named identity (optionally a device).
func (ks *KeyStore) LoadSeed(seedHex, name, device, keyFile string) ([]byte, error) {
	if seedHex != "" {
		return ParseSeedHex(seedHex)
	}
	if keyFile != "" {
		return ks.loadSeedFromFile(keyFile)
	}
	if name != "" {
		if err := CheckKeyName(name); err != nil {
			return nil, err
		}
		if device == "" {
			return ks.loadSeedFromFile(ks.rootKeyPath(name))
		}
		if err := CheckDeviceName(device); err != nil {
			return nil, err
		}
		return ks.loadSeedFromFile(ks.deviceKeyPath(name, device))
	}
	return nil, errors.New("no signer provided")
}

func (ks *KeyStore) ListKeys() ([]KeyEntry, error) {
	entries, err := os.ReadDir(ks.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var result []KeyEntry
	for _, name := range names {
		devicesDir := filepath.Join(ks.Directory, name, "devices")
		deviceEntries, derr := os.ReadDir(devicesDir)
		var devices []string
		if derr == nil {
			for _, deviceEntry := range deviceEntries {
				if deviceEntry.IsDir() {
					continue
				}
				if strings.HasSuffix(deviceEntry.Name(), ".key") {
					devices = append(devices, strings.TrimSuffix(deviceEntry.Name(), ".key"))
				}
			}
			sort.Strings(devices)
		}
		result = append(result, KeyEntry{Name: name, Devices: devices})
	}
	return result, nil
}
