// flowkeys generates and inspects the RSA key pair used by the encrypted
// flow exchange. The public key is what gets registered with the messaging
// platform; the private key stays with the endpoint.
package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"lifetap/flow-backend/internal/crypto"
)

var (
	outputDir string
	keySize   int
)

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func execute() error {
	root := &cobra.Command{
		Use:   "flowkeys",
		Short: "Manage the RSA key pair for the encrypted flow endpoint",
	}
	root.PersistentFlags().StringVarP(&outputDir, "output-dir", "o", "keys", "directory for key files")
	root.AddCommand(generateCmd(), publicCmd())
	return root.Execute()
}

func generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a new RSA key pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			if keySize != 2048 && keySize != 4096 {
				return fmt.Errorf("key size must be 2048 or 4096, got %d", keySize)
			}
			key, err := rsa.GenerateKey(rand.Reader, keySize)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(outputDir, 0o700); err != nil {
				return err
			}

			privPath := filepath.Join(outputDir, "private.pem")
			privPEM := pem.EncodeToMemory(&pem.Block{
				Type:  "PRIVATE KEY",
				Bytes: mustPKCS8(key),
			})
			if err := os.WriteFile(privPath, privPEM, 0o600); err != nil {
				return err
			}

			pubPath := filepath.Join(outputDir, "public.pem")
			pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
			if err != nil {
				return err
			}
			pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
			if err := os.WriteFile(pubPath, pubPEM, 0o644); err != nil {
				return err
			}

			fmt.Printf("Key pair written.\nPrivate: %s\nPublic:  %s\n", privPath, pubPath)
			fmt.Println("Register the public key with the messaging platform.")
			return nil
		},
	}
	cmd.Flags().IntVar(&keySize, "key-size", 2048, "RSA key size (2048 or 4096)")
	return cmd
}

func publicCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "public",
		Short: "Print the public key for an existing private key",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := crypto.LoadPrivateKey(filepath.Join(outputDir, "private.pem"))
			if err != nil {
				return err
			}
			pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
			if err != nil {
				return err
			}
			return pem.Encode(os.Stdout, &pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
		},
	}
}

func mustPKCS8(key *rsa.PrivateKey) []byte {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		panic(err)
	}
	return der
}
