package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/JoelBondurant/digisafe/internal/crypto"
	"github.com/JoelBondurant/digisafe/internal/pepper"
	"github.com/JoelBondurant/digisafe/internal/platform"
	"github.com/JoelBondurant/digisafe/internal/session"
	"github.com/JoelBondurant/digisafe/internal/storage"
	"github.com/JoelBondurant/digisafe/internal/totp"
	"github.com/JoelBondurant/digisafe/internal/vault"
)

// common holds the flags every vault-touching command shares.
type common struct {
	vault    string
	dir      string
	mongoURI string
	mongoDB  string
	mongoCol string
	lowCost  bool
	strict   bool
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.vault, "vault", "main", "vault name")
	fs.StringVar(&c.dir, "dir", defaultDir(), "local vault directory")
	fs.StringVar(&c.mongoURI, "mongo", "", "MongoDB URI for remote backup (optional)")
	fs.StringVar(&c.mongoDB, "db", "digisafe", "Mongo database name")
	fs.StringVar(&c.mongoCol, "coll", "vaults", "Mongo collection name")
	fs.BoolVar(&c.lowCost, "low-cost", false, "weak KDF parameters, test use only")
	fs.BoolVar(&c.strict, "strict", false, "also require a Wayland session")
}

func defaultDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home + "/.digisafe"
	}
	return "."
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	dieIf(platform.Preflight())

	switch os.Args[1] {
	case "get":
		var c common
		fs := flag.NewFlagSet("get", flag.ExitOnError)
		c.register(fs)
		_ = fs.Parse(os.Args[2:])
		dieIf(cmdGet(&c, fs.Args()))

	case "set":
		var c common
		fs := flag.NewFlagSet("set", flag.ExitOnError)
		c.register(fs)
		user := fs.String("user", "", "username to store")
		pass := fs.String("pass", "", "password, gen:N to generate, empty to prompt")
		note := fs.String("note", "", "free-form note")
		totpFlag := fs.String("totp", "", "authenticator secret, or gen to create one")
		_ = fs.Parse(os.Args[2:])
		dieIf(cmdSet(&c, fs.Args(), *user, *pass, *note, *totpFlag))

	case "list":
		var c common
		fs := flag.NewFlagSet("list", flag.ExitOnError)
		c.register(fs)
		_ = fs.Parse(os.Args[2:])
		dieIf(cmdList(&c))

	case "totp":
		var c common
		fs := flag.NewFlagSet("totp", flag.ExitOnError)
		c.register(fs)
		_ = fs.Parse(os.Args[2:])
		dieIf(cmdTOTP(&c, fs.Args()))

	case "meta":
		var c common
		fs := flag.NewFlagSet("meta", flag.ExitOnError)
		c.register(fs)
		_ = fs.Parse(os.Args[2:])
		dieIf(cmdMeta(&c, fs.Args()))

	case "enroll":
		fs := flag.NewFlagSet("enroll", flag.ExitOnError)
		service := fs.String("service", "digisafe", "OS keyring service name")
		id := fs.String("id", pepper.DefaultCredentialID, "credential id")
		_ = fs.Parse(os.Args[2:])
		dieIf(cmdEnroll(*service, *id))

	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Print(`vaultctl commands:

  enroll  [--service digisafe --id digisafe-pepper]
  get     <entry> [--vault main --dir ~/.digisafe] [--mongo URI --db digisafe --coll vaults]
  set     <entry> [--user alice] [--pass gen:20|--pass secret] [--note text] [--totp gen] [...]
  list    [--vault main ...]
  totp    <entry> [--vault main ...]
  meta    <name> [value] [--vault main ...]

A vault that does not exist yet is created on first unlock. Run enroll once
per device before anything else.

Examples:
  vaultctl enroll
  vaultctl set example.com --user alice --pass gen:20
  vaultctl get example.com
`)
}

func openSession(ctx context.Context, c *common) (*session.Session, func(), error) {
	if c.strict {
		if err := platform.RequireWaylandSession(); err != nil {
			return nil, nil, err
		}
	}

	src, err := pepper.NewKeyringSource("digisafe")
	if err != nil {
		return nil, nil, err
	}

	var remote storage.BlobStore
	var closeRemote func()
	if c.mongoURI != "" {
		ms, err := storage.NewMongoBlobStore(ctx, c.mongoURI, c.mongoDB, c.mongoCol)
		if err != nil {
			return nil, nil, err
		}
		remote = ms
		closeRemote = func() { _ = ms.Close(context.Background()) }
	}

	cost := crypto.CostFull
	if c.lowCost {
		cost = crypto.CostLow
	}

	mgr := session.NewManager(session.Options{
		Dir:    c.dir,
		Remote: remote,
		Pepper: src,
		Cost:   cost,
	})

	password, err := promptSecret("Master password: ")
	if err != nil {
		if closeRemote != nil {
			closeRemote()
		}
		return nil, nil, err
	}
	sess, err := mgr.Unlock(ctx, c.vault, password)
	zero(password)
	if err != nil {
		if closeRemote != nil {
			closeRemote()
		}
		return nil, nil, err
	}

	cleanup := func() {
		sess.Lock()
		if closeRemote != nil {
			closeRemote()
		}
	}
	return sess, cleanup, nil
}

func cmdGet(c *common, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: vaultctl get <entry>")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sess, cleanup, err := openSession(ctx, c)
	if err != nil {
		return err
	}
	defer cleanup()

	e, ok := sess.GetLogin(args[0])
	if !ok {
		return fmt.Errorf("no entry %q", args[0])
	}
	if u := e.Username(); u != "" {
		fmt.Println("username:", u)
	}
	fmt.Println("password:", e.Password())
	if n := e.Note(); n != "" {
		fmt.Println("note:", n)
	}
	return nil
}

func cmdSet(c *common, args []string, user, pass, note, totpSecret string) error {
	if len(args) != 1 {
		return errors.New("usage: vaultctl set <entry> [--user u] [--pass p|gen:N] [--note n] [--totp s|gen]")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sess, cleanup, err := openSession(ctx, c)
	if err != nil {
		return err
	}
	defer cleanup()

	if pass == "" {
		p, err := promptSecret("Entry password: ")
		if err != nil {
			return err
		}
		pass = string(p)
		zero(p)
	} else if len(pass) > 4 && pass[:4] == "gen:" {
		var n int
		_, _ = fmt.Sscanf(pass, "gen:%d", &n)
		if n <= 0 {
			n = 20
		}
		pass = genPassword(n)
		fmt.Println("generated:", pass)
	}

	e, ok := sess.GetLogin(args[0])
	if !ok {
		e = vault.NewLoginEntry(args[0])
	}
	if user != "" {
		e.SetUsername(user)
	}
	if note != "" {
		e.SetNote(note)
	}
	if totpSecret == "gen" {
		s, err := totp.GenerateSecret()
		if err != nil {
			return err
		}
		totpSecret = s
		fmt.Println(totp.ProvisionURI(args[0], "digisafe", s))
	}
	if totpSecret != "" {
		e.SetTOTPSecret(totpSecret)
	}
	e.SetPassword(pass)
	if err := sess.SetLogin(e); err != nil {
		return err
	}

	msg, err := sess.Save(ctx)
	fmt.Println(msg)
	if errors.Is(err, session.ErrBackup) {
		fmt.Fprintln(os.Stderr, "warning:", err)
		return nil
	}
	return err
}

func cmdTOTP(c *common, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: vaultctl totp <entry>")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sess, cleanup, err := openSession(ctx, c)
	if err != nil {
		return err
	}
	defer cleanup()

	e, ok := sess.GetLogin(args[0])
	if !ok {
		return fmt.Errorf("no entry %q", args[0])
	}
	secret := e.TOTPSecret()
	if secret == "" {
		return fmt.Errorf("entry %q has no authenticator secret", args[0])
	}
	code, err := totp.Code(secret, time.Now())
	if err != nil {
		return err
	}
	fmt.Println(code)
	return nil
}

func cmdList(c *common) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sess, cleanup, err := openSession(ctx, c)
	if err != nil {
		return err
	}
	defer cleanup()

	for _, name := range sess.Names() {
		fmt.Println(name)
	}
	return nil
}

func cmdMeta(c *common, args []string) error {
	if len(args) != 1 && len(args) != 2 {
		return errors.New("usage: vaultctl meta <name> [value]")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sess, cleanup, err := openSession(ctx, c)
	if err != nil {
		return err
	}
	defer cleanup()

	if len(args) == 1 {
		v, ok := sess.GetMeta(args[0])
		if !ok {
			return fmt.Errorf("no metadata %q", args[0])
		}
		fmt.Println(v)
		return nil
	}

	sess.SetMeta(args[0], args[1])
	msg, err := sess.Save(ctx)
	fmt.Println(msg)
	if errors.Is(err, session.ErrBackup) {
		fmt.Fprintln(os.Stderr, "warning:", err)
		return nil
	}
	return err
}

func cmdEnroll(service, id string) error {
	src, err := pepper.NewKeyringSource(service)
	if err != nil {
		return err
	}
	if err := src.Enroll(id); err != nil {
		return err
	}
	fmt.Println("Pepper enrolled under", service+"/"+id)
	return nil
}

// ============ Utilities ============

func promptSecret(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		return b, err
	}
	// Piped input, e.g. in scripts.
	var b []byte
	buf := make([]byte, 1)
	for {
		n, err := os.Stdin.Read(buf)
		if n > 0 {
			if buf[0] == '\n' {
				break
			}
			b = append(b, buf[0])
		}
		if err != nil {
			break
		}
	}
	return b, nil
}

func genPassword(n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%^&*()-_=+[]{}"
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		for i := range buf {
			buf[i] = alphabet[i%len(alphabet)]
		}
	}
	for i := range buf {
		buf[i] = alphabet[int(buf[i])%len(alphabet)]
	}
	return string(buf)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func dieIf(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
