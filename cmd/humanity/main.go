package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"humanity.network/core/canon"
	"humanity.network/core/cidutil"
	"humanity.network/core/identity"
	"humanity.network/core/object"
	"humanity.network/core/storage/bundle"
	"humanity.network/core/storage/sqlitestore"
	"humanity.network/core/validate"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "key":
		return cmdKey(args[1:], out, errOut)
	case "sign":
		return cmdSign(args[1:], out, errOut)
	case "id":
		return cmdID(args[1:], out, errOut)
	case "verify":
		return cmdVerify(args[1:], out, errOut)
	case "inspect":
		return cmdInspect(args[1:], out, errOut)
	case "export":
		return cmdExport(args[1:], out, errOut)
	case "import":
		return cmdImport(args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "humanity: identity and object tooling for the protocol core")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  humanity key init --name <name> [--seed-hex <64hex>] [--force]")
	fmt.Fprintln(w, "  humanity key derive --from <name> --device <device> [--force]")
	fmt.Fprintln(w, "  humanity key list")
	fmt.Fprintln(w, "  humanity key export --name <name> [--device <device>]")
	fmt.Fprintln(w, "  humanity sign --type <object_type> [--space <id>] [--channel <id>] [--body <text>] [--field Key=Value ...] [--ref <object_id> ...] (--seed-hex <64hex> | --signer <name> [--device <d>] | --key-file <path>)")
	fmt.Fprintln(w, "  humanity id [--block] <file>")
	fmt.Fprintln(w, "  humanity verify <file>")
	fmt.Fprintln(w, "  humanity inspect <file>")
	fmt.Fprintln(w, "  humanity export --store <db> --space <id> [--out <file>]")
	fmt.Fprintln(w, "  humanity import --store <db> <file>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - --seed-hex must be 32 bytes (64 hex chars) ed25519 seed")
	fmt.Fprintln(w, "  - keys live under ~/.humanity/keys/<name> (0600 seed files); --keys-dir overrides")
	fmt.Fprintln(w, "  - sign writes canonical object bytes to stdout (no trailing newline)")
	fmt.Fprintln(w, "  - id prints the object id; --block hashes the file as an opaque block")
	fmt.Fprintln(w, "  - export/import move a space archive between devices without a relay")
}

type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func cmdKey(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printKeyUsage(errOut)
		return 2
	}
	switch args[0] {
	case "init":
		return cmdKeyInit(args[1:], out, errOut)
	case "derive":
		return cmdKeyDerive(args[1:], out, errOut)
	case "list":
		return cmdKeyList(args[1:], out, errOut)
	case "export":
		return cmdKeyExport(args[1:], out, errOut)
	case "help", "-h", "--help":
		printKeyUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown key subcommand: %s\n\n", args[0])
		printKeyUsage(errOut)
		return 2
	}
}

func printKeyUsage(w io.Writer) {
	fmt.Fprintln(w, "humanity key: local identity and device key management")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  humanity key init --name <name> [--seed-hex <64hex>] [--force]")
	fmt.Fprintln(w, "  humanity key derive --from <name> --device <device> [--force]")
	fmt.Fprintln(w, "  humanity key list")
	fmt.Fprintln(w, "  humanity key export --name <name> [--device <device>]")
}

func cmdKeyInit(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key init", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var name string
	var seedHex string
	var keysDir string
	var force bool

	fs.StringVar(&name, "name", "", "Identity name (directory under the keystore)")
	fs.StringVar(&seedHex, "seed-hex", "", "Optional ed25519 seed as 64 hex chars (for reproducible demos)")
	fs.StringVar(&keysDir, "keys-dir", "", "Keystore directory (default ~/.humanity/keys)")
	fs.BoolVar(&force, "force", false, "Overwrite existing key files")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if name == "" {
		fmt.Fprintln(errOut, "missing --name")
		return 2
	}
	if err := identity.CheckKeyName(name); err != nil {
		fmt.Fprintf(errOut, "invalid --name: %v\n", err)
		return 2
	}
	ks, err := identity.OpenKeyStore(keysDir)
	if err != nil {
		fmt.Fprintf(errOut, "keystore: %v\n", err)
		return 1
	}

	var seed []byte
	if seedHex != "" {
		var derr error
		seed, derr = identity.ParseSeedHex(seedHex)
		if derr != nil {
			fmt.Fprintf(errOut, "invalid --seed-hex: %v\n", derr)
			return 2
		}
	} else {
		seed = make([]byte, ed25519.SeedSize)
		if _, err := rand.Read(seed); err != nil {
			fmt.Fprintf(errOut, "rand: %v\n", err)
			return 1
		}
	}

	publicKey, path, err := ks.InitializeIdentity(name, seed, force)
	if err != nil {
		fmt.Fprintf(errOut, "write key: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Created identity key: %s\n", publicKey)
	fmt.Fprintf(out, "Stored at: %s\n", path)
	return 0
}

func cmdKeyDerive(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key derive", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var from string
	var device string
	var keysDir string
	var force bool

	fs.StringVar(&from, "from", "", "Identity name")
	fs.StringVar(&device, "device", "", "Device identifier (e.g. laptop, phone)")
	fs.StringVar(&keysDir, "keys-dir", "", "Keystore directory (default ~/.humanity/keys)")
	fs.BoolVar(&force, "force", false, "Overwrite existing key files")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if from == "" {
		fmt.Fprintln(errOut, "missing --from")
		return 2
	}
	if device == "" {
		fmt.Fprintln(errOut, "missing --device")
		return 2
	}
	if err := identity.CheckKeyName(from); err != nil {
		fmt.Fprintf(errOut, "invalid --from: %v\n", err)
		return 2
	}
	if err := identity.CheckDeviceName(device); err != nil {
		fmt.Fprintf(errOut, "invalid --device: %v\n", err)
		return 2
	}
	ks, err := identity.OpenKeyStore(keysDir)
	if err != nil {
		fmt.Fprintf(errOut, "keystore: %v\n", err)
		return 1
	}
	publicKey, path, err := ks.DeriveDeviceKey(from, device, force)
	if err != nil {
		fmt.Fprintf(errOut, "derive device key: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Created device key: %s\n", publicKey)
	fmt.Fprintf(out, "Stored at: %s\n", path)
	return 0
}

func cmdKeyList(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key list", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var keysDir string
	fs.StringVar(&keysDir, "keys-dir", "", "Keystore directory (default ~/.humanity/keys)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	ks, err := identity.OpenKeyStore(keysDir)
	if err != nil {
		fmt.Fprintf(errOut, "keystore: %v\n", err)
		return 1
	}
	entries, err := ks.ListKeys()
	if err != nil {
		fmt.Fprintf(errOut, "list keys: %v\n", err)
		return 1
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%s\n", e.Name)
		for _, d := range e.Devices {
			fmt.Fprintf(out, "  - %s\n", d)
		}
	}
	return 0
}

func cmdKeyExport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key export", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var name string
	var device string
	var keysDir string

	fs.StringVar(&name, "name", "", "Identity name")
	fs.StringVar(&device, "device", "", "Optional device (if set, exports the derived device key)")
	fs.StringVar(&keysDir, "keys-dir", "", "Keystore directory (default ~/.humanity/keys)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if name == "" {
		fmt.Fprintln(errOut, "missing --name")
		return 2
	}
	ks, err := identity.OpenKeyStore(keysDir)
	if err != nil {
		fmt.Fprintf(errOut, "keystore: %v\n", err)
		return 1
	}
	publicKey, err := ks.ExportPublicKey(name, device)
	if err != nil {
		fmt.Fprintf(errOut, "export key: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(out, publicKey)
	return 0
}

func cmdSign(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var objType string
	var spaceID string
	var channelID string
	var body string
	var createdAt uint64
	var schema uint64
	var seedHex string
	var signer string
	var device string
	var keyFile string
	var keysDir string
	var refs stringList
	var fields stringList
	var printAuthor bool

	fs.StringVar(&objType, "type", "", "Object type (e.g. message, post, profile)")
	fs.StringVar(&spaceID, "space", "", "Space id the object belongs to")
	fs.StringVar(&channelID, "channel", "", "Channel id within the space")
	fs.StringVar(&body, "body", "", "Shorthand for --field body=<text>")
	fs.Uint64Var(&createdAt, "created-at", 0, "Unix timestamp (defaults to now UTC)")
	fs.Uint64Var(&schema, "schema", 1, "Payload schema version")
	fs.StringVar(&seedHex, "seed-hex", "", "ed25519 seed as 64 hex chars")
	fs.StringVar(&signer, "signer", "", "Use a stored identity by name (from 'humanity key init')")
	fs.StringVar(&device, "device", "", "When using --signer, use a derived device key")
	fs.StringVar(&keyFile, "key-file", "", "Path to a seed file created by 'humanity key init/derive'")
	fs.StringVar(&keysDir, "keys-dir", "", "Keystore directory (default ~/.humanity/keys)")
	fs.Var(&refs, "ref", "Referenced object id (repeatable)")
	fs.Var(&fields, "field", "Payload field as Key=Value (repeatable, string values)")
	fs.BoolVar(&printAuthor, "print-author", true, "Print Author-Key to stderr")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if objType == "" {
		fmt.Fprintln(errOut, "missing --type")
		return 2
	}
	if seedHex == "" && signer == "" && keyFile == "" {
		fmt.Fprintln(errOut, "missing signer: use --seed-hex, --signer, or --key-file")
		return 2
	}
	if seedHex != "" && (signer != "" || keyFile != "") {
		fmt.Fprintln(errOut, "conflicting signer flags: --seed-hex cannot be combined with --signer or --key-file")
		return 2
	}
	if signer != "" && keyFile != "" {
		fmt.Fprintln(errOut, "conflicting signer flags: --signer cannot be combined with --key-file")
		return 2
	}

	ks, err := identity.OpenKeyStore(keysDir)
	if err != nil {
		fmt.Fprintf(errOut, "keystore: %v\n", err)
		return 1
	}
	seed, err := ks.LoadSeed(seedHex, signer, device, keyFile)
	if err != nil {
		fmt.Fprintf(errOut, "invalid signer: %v\n", err)
		return 2
	}
	priv := ed25519.NewKeyFromSeed(seed)
	if printAuthor {
		fmt.Fprintf(errOut, "Author-Key: %s\n", identity.KeyString(priv.Public().(ed25519.PublicKey)))
	}

	payload, err := parseFields(fields)
	if err != nil {
		fmt.Fprintf(errOut, "invalid --field: %v\n", err)
		return 2
	}
	if body != "" {
		if existing, ok := payload["body"]; ok && existing != body {
			fmt.Fprintf(errOut, "conflicting body: --body=%q vs --field body=%q\n", body, existing)
			return 2
		}
		payload["body"] = body
	}

	if createdAt == 0 {
		createdAt = uint64(time.Now().UTC().Unix())
	}

	b := object.NewBuilder(objType).
		CreatedAt(createdAt).
		PayloadSchemaVersion(schema).
		Payload(payload)
	if spaceID != "" {
		b = b.Space(spaceID)
	}
	if channelID != "" {
		b = b.Channel(channelID)
	}
	if len(refs) > 0 {
		b = b.References(refs...)
	}

	o, err := b.Sign(priv)
	if err != nil {
		fmt.Fprintf(errOut, "sign: %v\n", err)
		return 1
	}

	switch res := validate.Default().Validate(o); res.Disposition {
	case validate.Reject:
		fmt.Fprintf(errOut, "invalid object: %v\n", res.Err)
		return 2
	case validate.StoreOnly:
		fmt.Fprintln(errOut, "warning: object type or schema is not recognized locally; emitting anyway")
	}

	id, err := o.ID()
	if err != nil {
		fmt.Fprintf(errOut, "id: %v\n", err)
		return 1
	}
	raw, err := o.CanonicalBytes()
	if err != nil {
		fmt.Fprintf(errOut, "encode: %v\n", err)
		return 1
	}
	fmt.Fprintf(errOut, "Object-ID: %s\n", id)
	_, _ = out.Write(raw)
	return 0
}

func cmdID(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("id", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var block bool
	fs.BoolVar(&block, "block", false, "Treat the file as an opaque block instead of an object envelope")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: humanity id [--block] <file>")
		return 2
	}
	raw, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "read: %v\n", err)
		return 1
	}

	if block {
		_, _ = fmt.Fprintln(out, cidutil.CIDv1RawBlake3(raw))
		return 0
	}

	o, err := object.Decode(raw)
	if err != nil {
		fmt.Fprintf(errOut, "decode: %v\n", err)
		return 1
	}
	id, err := o.ID()
	if err != nil {
		fmt.Fprintf(errOut, "id: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(out, id)
	return 0
}

func cmdVerify(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: humanity verify <file>")
		return 2
	}
	raw, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "read: %v\n", err)
		return 1
	}
	o, err := object.Decode(raw)
	if err != nil {
		fmt.Fprintf(errOut, "decode: %v\n", err)
		return 1
	}
	if err := o.VerifySignature(); err != nil {
		fmt.Fprintf(errOut, "verify: %v\n", err)
		return 1
	}
	id, err := o.ID()
	if err != nil {
		fmt.Fprintf(errOut, "id: %v\n", err)
		return 1
	}
	fmt.Fprintf(errOut, "Object-ID: %s\n", id)
	fmt.Fprintf(errOut, "Author-Key: %s\n", identity.KeyString(o.AuthorPublicKey))
	_, _ = fmt.Fprintln(out, "OK")
	return 0
}

func cmdInspect(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	fs.SetOutput(errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: humanity inspect <file>")
		return 2
	}
	raw, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "read: %v\n", err)
		return 1
	}
	o, err := object.Decode(raw)
	if err != nil {
		fmt.Fprintf(errOut, "decode: %v\n", err)
		return 1
	}

	id, err := o.ID()
	if err != nil {
		fmt.Fprintf(errOut, "id: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "object_id:      %s\n", id)
	fmt.Fprintf(out, "object_type:    %s\n", o.ObjectType)
	fmt.Fprintf(out, "protocol:       %d\n", o.ProtocolVersion)
	if o.SpaceID != "" {
		fmt.Fprintf(out, "space_id:       %s\n", o.SpaceID)
	}
	if o.ChannelID != "" {
		fmt.Fprintf(out, "channel_id:     %s\n", o.ChannelID)
	}
	fmt.Fprintf(out, "author_key:     %s\n", identity.KeyString(o.AuthorPublicKey))
	if o.CreatedAt != nil {
		fmt.Fprintf(out, "created_at:     %d\n", *o.CreatedAt)
	}
	fmt.Fprintf(out, "schema_version: %d\n", o.PayloadSchemaVersion)
	fmt.Fprintf(out, "encoding:       %s\n", o.PayloadEncoding)
	if len(o.References) > 0 {
		fmt.Fprintf(out, "references:     %s\n", strings.Join(o.References, ", "))
	}
	if keys := payloadKeys(o); len(keys) > 0 {
		fmt.Fprintf(out, "payload_keys:   %s\n", strings.Join(keys, ", "))
	}

	if err := o.VerifySignature(); err != nil {
		fmt.Fprintf(out, "signature:      INVALID (%v)\n", err)
	} else {
		fmt.Fprintf(out, "signature:      ok\n")
	}
	res := validate.Default().Validate(o)
	switch res.Disposition {
	case validate.Accept:
		fmt.Fprintf(out, "validation:     accept\n")
	case validate.StoreOnly:
		fmt.Fprintf(out, "validation:     store-only (%s)\n", res.RuleID)
	case validate.Reject:
		fmt.Fprintf(out, "validation:     reject (%v)\n", res.Err)
	}
	return 0
}

func payloadKeys(o *object.Object) []string {
	if o.PayloadEncoding != object.EncodingPlaintext || len(o.Payload) == 0 {
		return nil
	}
	m, err := canon.DecodeMap(o.Payload)
	if err != nil {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func parseFields(items []string) (map[string]any, error) {
	payload := make(map[string]any)
	for _, it := range items {
		k, v, ok := strings.Cut(it, "=")
		if !ok {
			return nil, fmt.Errorf("expected Key=Value, got %q", it)
		}
		k = strings.TrimSpace(k)
		if k == "" {
			return nil, errors.New("empty key")
		}
		if _, exists := payload[k]; exists {
			return nil, fmt.Errorf("duplicate field key %q", k)
		}
		payload[k] = v
	}
	return payload, nil
}

func cmdExport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var storePath, spaceID, outPath string
	fs.StringVar(&storePath, "store", "", "SQLite database path")
	fs.StringVar(&spaceID, "space", "", "Space to export")
	fs.StringVar(&outPath, "out", "", "Archive file (defaults to stdout)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if storePath == "" || spaceID == "" {
		fmt.Fprintln(errOut, "export: --store and --space are required")
		return 2
	}

	st, err := sqlitestore.Open(storePath)
	if err != nil {
		fmt.Fprintf(errOut, "open store: %v\n", err)
		return 1
	}
	defer st.Close()

	dest := out
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			fmt.Fprintf(errOut, "create: %v\n", err)
			return 1
		}
		defer f.Close()
		dest = f
	}

	if err := bundle.Export(context.Background(), dest, st, spaceID, bundle.ExportOptions{}); err != nil {
		fmt.Fprintf(errOut, "export: %v\n", err)
		return 1
	}
	if outPath != "" {
		fmt.Fprintf(errOut, "Archive written to %s\n", outPath)
	}
	return 0
}

func cmdImport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var storePath string
	fs.StringVar(&storePath, "store", "", "SQLite database path")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if storePath == "" {
		fmt.Fprintln(errOut, "import: --store is required")
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: humanity import --store <db> <file>")
		return 2
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "open: %v\n", err)
		return 1
	}
	defer f.Close()

	st, err := sqlitestore.Open(storePath)
	if err != nil {
		fmt.Fprintf(errOut, "open store: %v\n", err)
		return 1
	}
	defer st.Close()

	res, err := bundle.Import(context.Background(), f, st)
	if err != nil {
		fmt.Fprintf(errOut, "import: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Imported %d objects into space %s\n", res.Objects, res.SpaceID)
	return 0
}
