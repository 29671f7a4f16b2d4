package main

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/datafold/datafold/pkg/types"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage registered Ed25519 signing keys",
}

var keysRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Generate and register a new Ed25519 key pair",
	Long: `Generates a fresh Ed25519 key pair, registers the public half
with the security core (sealed at rest under the configured
securityLevel's Argon2id-derived master key), and prints the private key
once. The private key is never persisted — save it now.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")
		permissions, _ := cmd.Flags().GetStringSlice("permissions")
		expiresIn, _ := cmd.Flags().GetDuration("expires-in")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		e, err := newEngine(cfg)
		if err != nil {
			return err
		}
		defer e.Close()

		pub, priv, err := ed25519.GenerateKey(nil)
		if err != nil {
			return types.WrapError(types.ErrSecurity, err, "failed to generate key pair")
		}

		var expiresAt *time.Time
		if expiresIn > 0 {
			t := time.Now().Add(expiresIn)
			expiresAt = &t
		}

		keyID := uuid.NewString()
		if err := e.keys.Register(keyID, pub, owner, permissions, expiresAt); err != nil {
			return err
		}

		fmt.Printf("✓ key registered: %s\n", keyID)
		fmt.Printf("  owner:       %s\n", owner)
		fmt.Printf("  permissions: %s\n", strings.Join(permissions, ","))
		fmt.Printf("  public key:  %s\n", base64.StdEncoding.EncodeToString(pub))
		fmt.Printf("  private key: %s\n", base64.StdEncoding.EncodeToString(priv))
		fmt.Println("Store the private key now — it is not persisted anywhere.")
		return nil
	},
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered public keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		e, err := newEngine(cfg)
		if err != nil {
			return err
		}
		defer e.Close()

		all, err := e.keys.List()
		if err != nil {
			return err
		}
		for _, meta := range all {
			status := "active"
			if meta.Expired(time.Now()) {
				status = "expired"
			}
			fmt.Printf("%s\towner=%s\tpermissions=%s\tstatus=%s\n",
				meta.PublicKeyID, meta.OwnerID, strings.Join(meta.Permissions, ","), status)
		}
		return nil
	},
}

func init() {
	keysRegisterCmd.Flags().String("owner", "", "Owner ID to associate with the new key (required)")
	keysRegisterCmd.Flags().StringSlice("permissions", nil, "Permissions to grant the new key (repeatable)")
	keysRegisterCmd.Flags().Duration("expires-in", 0, "Optional key lifetime (e.g. 24h); 0 means no expiry")
	_ = keysRegisterCmd.MarkFlagRequired("owner")

	keysCmd.AddCommand(keysRegisterCmd)
	keysCmd.AddCommand(keysListCmd)
}
