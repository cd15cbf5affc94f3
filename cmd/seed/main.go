// seed es la herramienta de administración local: crea usuarios verificados y
// clients OAuth sin pasar por el flujo de email.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/onepass-id/onepass/internal/config"
	"github.com/onepass-id/onepass/internal/security/password"
	"github.com/onepass-id/onepass/internal/security/token"
	"github.com/onepass-id/onepass/internal/store/core"
	"github.com/onepass-id/onepass/internal/store/pg"
)

func main() {
	_ = godotenv.Load()

	var cfgPath string

	root := &cobra.Command{
		Use:   "seed",
		Short: "Siembra usuarios y clients en el storage configurado",
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "ruta a config.yaml (default: env)")

	root.AddCommand(newUserCmd(&cfgPath), newClientCmd(&cfgPath))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openStore(cfgPath string) (*pg.Store, *config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Storage.Driver != "postgres" {
		return nil, nil, fmt.Errorf("seed requiere storage.driver=postgres (actual: %s)", cfg.Storage.Driver)
	}
	st, err := pg.New(context.Background(), cfg.Storage.DSN, pg.Config{})
	if err != nil {
		return nil, nil, err
	}
	return st, cfg, nil
}

func newUserCmd(cfgPath *string) *cobra.Command {
	var email, username string

	cmd := &cobra.Command{
		Use:   "user",
		Short: "Crea un usuario ya verificado",
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" {
				return fmt.Errorf("--email es requerido")
			}
			st, _, err := openStore(*cfgPath)
			if err != nil {
				return err
			}
			defer st.Close()

			u := &core.User{
				Email:      strings.ToLower(email),
				IsVerified: true,
			}
			if username != "" {
				u.Username = &username
			}
			alias := fmt.Sprintf("%s.%s@mail.onepass.id",
				strings.SplitN(u.Email, "@", 2)[0], uuid.NewString()[:8])
			u.VirtualEmail = &alias

			for i := 0; i < 3; i++ {
				u.PublicID = randomPublicID()
				if err = st.CreateUser(cmd.Context(), u); err != core.ErrConflict {
					break
				}
			}
			if err != nil {
				return err
			}
			fmt.Printf("usuario creado: id=%d publicId=%d email=%s\n", u.ID, u.PublicID, u.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email del usuario")
	cmd.Flags().StringVar(&username, "username", "", "username visible (opcional)")
	return cmd
}

func newClientCmd(cfgPath *string) *cobra.Command {
	var name, redirectURIs, scopes string
	var ownerID int64

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Registra un client OAuth; imprime el secret una única vez",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" || redirectURIs == "" || ownerID == 0 {
				return fmt.Errorf("--name, --redirect-uris y --owner son requeridos")
			}
			st, _, err := openStore(*cfgPath)
			if err != nil {
				return err
			}
			defer st.Close()

			secret, err := token.GenerateOpaqueToken(32)
			if err != nil {
				return err
			}
			hashed, err := password.Hash(password.Default, secret)
			if err != nil {
				return err
			}

			c := &core.Client{
				ClientID:     uuid.NewString(),
				Name:         name,
				HashedSecret: hashed,
				RedirectURIs: splitCSV(redirectURIs),
				Scopes:       splitCSV(scopes),
				OwnerUserID:  ownerID,
			}
			if err := st.CreateClient(cmd.Context(), c); err != nil {
				return err
			}

			fmt.Printf("client creado:\n  client_id:     %s\n  client_secret: %s\n", c.ClientID, secret)
			fmt.Println("guardá el secret ahora: no se puede recuperar después")
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "nombre visible del client")
	cmd.Flags().StringVar(&redirectURIs, "redirect-uris", "", "redirect URIs separadas por coma")
	cmd.Flags().StringVar(&scopes, "scopes", "read:user", "scopes permitidos separados por coma")
	cmd.Flags().Int64Var(&ownerID, "owner", 0, "id interno del usuario dueño")
	return cmd
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func randomPublicID() uint64 {
	id := uuid.New()
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(id[i])
	}
	v >>= 1 // 63 bits, entra en BIGINT
	if v == 0 {
		v = 1
	}
	return v
}
