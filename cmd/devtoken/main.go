// Command devtoken mints identity tokens for local development. In
// production the portal's auth layer issues them.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/fenggwsx/hirechat/internal/auth"
	"github.com/fenggwsx/hirechat/internal/chat"
	"github.com/fenggwsx/hirechat/internal/config"
)

func main() {
	id := flag.String("id", "", "participant id")
	kind := flag.String("kind", string(chat.KindCandidate), "participant kind (candidate|hr)")
	name := flag.String("name", "", "display name")
	flag.Parse()

	cfg, err := config.LoadJWTConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	identity, err := chat.NewIdentity(*id, *kind)
	if err != nil {
		fmt.Fprintf(os.Stderr, "identity: %v\n", err)
		os.Exit(2)
	}
	token, err := auth.NewToken(cfg, identity, *name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
