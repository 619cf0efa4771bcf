// genkey generates an Ed25519 key pair for Kioku JWT signing.
//
// Usage (run from the repo root):
//
//	go run ./scripts/genkey [dir]
//
// Writes <dir>/jwt_private.pem and <dir>/jwt_public.pem, both mode 0600.
// dir defaults to data/. Point KIOKU_JWT_PRIVATE_KEY and KIOKU_JWT_PUBLIC_KEY
// at the files. Without them the server signs with an ephemeral key and every
// token dies with the process.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ashita-ai/kioku/internal/auth"
)

func main() {
	dir := "data"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}

	privPath, pubPath, err := auth.WriteKeyPair(dir)
	if errors.Is(err, auth.ErrKeyExists) {
		fmt.Fprintf(os.Stderr, "error: %v (delete it first if you want to rotate keys)\n", err)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("wrote %s\n", privPath)
	fmt.Printf("wrote %s\n", pubPath)
}
