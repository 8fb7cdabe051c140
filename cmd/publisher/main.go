package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ruteri/content-publisher/cmd/flags"
	"github.com/ruteri/content-publisher/common"
	"github.com/ruteri/content-publisher/cryptoutils"
	"github.com/ruteri/content-publisher/httpserver"
	"github.com/ruteri/content-publisher/interfaces"
	"github.com/urfave/cli/v2"
)

var flagContentType = &cli.StringFlag{
	Name:    "content-type",
	Aliases: []string{"t"},
	Usage:   "content type of the object; inferred from the path when empty",
}

var flagMessage = &cli.StringFlag{
	Name:    "message",
	Aliases: []string{"m"},
	Usage:   "commit message",
}

var flagOutput = &cli.StringFlag{
	Name:    "output",
	Aliases: []string{"o"},
	Usage:   "write the object to this file instead of stdout",
}

var flagKeyPrefix = &cli.StringFlag{
	Name:  "out",
	Value: "publisher",
	Usage: "write <out>.pem and <out>.pub.pem",
}

var errMissingArg = errors.New("missing argument")

// withPublisher runs action against the publisher selected by the common flags.
func withPublisher(action func(cCtx *cli.Context, p interfaces.Publisher) error) cli.ActionFunc {
	return func(cCtx *cli.Context) error {
		logger := flags.SetupLogger(cCtx)
		p, err := flags.Publisher(cCtx, logger)
		if err != nil {
			return err
		}
		return action(cCtx, p)
	}
}

func argAt(cCtx *cli.Context, i int, name string) (string, error) {
	if cCtx.NArg() <= i {
		return "", fmt.Errorf("%w: %s", errMissingArg, name)
	}
	return cCtx.Args().Get(i), nil
}

func main() {
	app := &cli.App{
		Name:    "publisher",
		Usage:   "Publish content to files, git, S3, IPFS, Vault or a remote publisher",
		Version: common.Version,
		Flags:   flags.CommonFlags,
		Commands: []*cli.Command{
			{
				Name:      "put",
				Usage:     "store a file (or stdin) as an object",
				ArgsUsage: "<path> [file|-]",
				Flags:     []cli.Flag{flagContentType},
				Action: withPublisher(func(cCtx *cli.Context, p interfaces.Publisher) error {
					path, err := argAt(cCtx, 0, "path")
					if err != nil {
						return err
					}

					var body io.Reader = os.Stdin
					if src := cCtx.Args().Get(1); src != "" && src != "-" {
						f, err := os.Open(src)
						if err != nil {
							return err
						}
						defer f.Close()
						body = f
					}

					return p.Put(cCtx.Context, path, body, cCtx.String(flagContentType.Name))
				}),
			},
			{
				Name:      "get",
				Usage:     "print an object",
				ArgsUsage: "<path>",
				Flags:     []cli.Flag{flagOutput},
				Action: withPublisher(func(cCtx *cli.Context, p interfaces.Publisher) error {
					path, err := argAt(cCtx, 0, "path")
					if err != nil {
						return err
					}

					obj, err := p.Get(cCtx.Context, path)
					if err != nil {
						return err
					}

					if out := cCtx.String(flagOutput.Name); out != "" {
						return os.WriteFile(out, obj.Body, 0o644)
					}
					_, err = os.Stdout.Write(obj.Body)
					return err
				}),
			},
			{
				Name:      "delete",
				Usage:     "remove an object",
				ArgsUsage: "<path>",
				Flags:     []cli.Flag{flagContentType},
				Action: withPublisher(func(cCtx *cli.Context, p interfaces.Publisher) error {
					path, err := argAt(cCtx, 0, "path")
					if err != nil {
						return err
					}
					return p.Delete(cCtx.Context, path, cCtx.String(flagContentType.Name))
				}),
			},
			{
				Name:      "exists",
				Usage:     "exit with status 1 when the object is missing",
				ArgsUsage: "<path>",
				Action: withPublisher(func(cCtx *cli.Context, p interfaces.Publisher) error {
					path, err := argAt(cCtx, 0, "path")
					if err != nil {
						return err
					}
					if !p.Exists(cCtx.Context, path) {
						return cli.Exit("", 1)
					}
					return nil
				}),
			},
			{
				Name:  "list",
				Usage: "print every stored name",
				Action: withPublisher(func(cCtx *cli.Context, p interfaces.Publisher) error {
					files, err := p.List(cCtx.Context)
					if err != nil {
						return err
					}
					for _, f := range files {
						fmt.Println(f)
					}
					return nil
				}),
			},
			{
				Name:      "commit",
				Usage:     "record a checkpoint",
				ArgsUsage: "<message>",
				Action: withPublisher(func(cCtx *cli.Context, p interfaces.Publisher) error {
					return p.Commit(cCtx.Context, strings.Join(cCtx.Args().Slice(), " "))
				}),
			},
			{
				Name:  "rollback",
				Usage: "discard uncommitted changes",
				Action: withPublisher(func(cCtx *cli.Context, p interfaces.Publisher) error {
					return p.Rollback(cCtx.Context)
				}),
			},
			{
				Name:      "publish",
				Usage:     "store every file of a directory and commit, rolling back on failure",
				ArgsUsage: "<dir>",
				Flags:     []cli.Flag{flagMessage},
				Action: func(cCtx *cli.Context) error {
					logger := flags.SetupLogger(cCtx)
					p, err := flags.Publisher(cCtx, logger)
					if err != nil {
						return err
					}
					dir, err := argAt(cCtx, 0, "dir")
					if err != nil {
						return err
					}
					message := cCtx.String(flagMessage.Name)
					if message == "" {
						message = "publish " + dir
					}
					n, err := publishDir(cCtx.Context, p, dir, message, logger)
					if err != nil {
						return err
					}
					logger.Info("Published directory", "dir", dir, "objects", n)
					return nil
				},
			},
			{
				Name:  "keygen",
				Usage: "generate a publisher signing key pair",
				Flags: []cli.Flag{flagKeyPrefix},
				Action: func(cCtx *cli.Context) error {
					privPEM, pubPEM, err := cryptoutils.GenerateKeyPair()
					if err != nil {
						return err
					}
					prefix := cCtx.String(flagKeyPrefix.Name)
					if err := os.WriteFile(prefix+".pem", privPEM, 0o600); err != nil {
						return err
					}
					if err := os.WriteFile(prefix+".pub.pem", pubPEM, 0o644); err != nil {
						return err
					}

					pub, err := cryptoutils.ParsePublicKey(pubPEM)
					if err != nil {
						return err
					}
					fingerprint, err := cryptoutils.Fingerprint(pub)
					if err != nil {
						return err
					}
					fmt.Println(fingerprint)
					return nil
				},
			},
			{
				Name:  "serve",
				Usage: "serve the publisher over HTTP",
				Flags: flags.ServerFlags,
				Action: func(cCtx *cli.Context) error {
					logger := flags.SetupLogger(cCtx)
					p, err := flags.Publisher(cCtx, logger)
					if err != nil {
						return err
					}

					cfg, err := flags.ConfigureServer(cCtx, logger)
					if err != nil {
						return err
					}

					server, err := httpserver.New(cfg, p)
					if err != nil {
						logger.Error("Failed to create server", "err", err)
						return err
					}

					logger.Info("Starting server", "publisher", p.LocationURI())
					server.RunInBackground()

					exit := make(chan os.Signal, 1)
					signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
					<-exit
					logger.Info("Shutdown signal received")

					server.Shutdown()
					logger.Info("Server shutdown complete")
					return nil
				},
			},
		},
	}

	if err := app.RunContext(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
