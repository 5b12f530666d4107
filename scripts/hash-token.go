package main

import (
	"fmt"
	"os"

	"github.com/zapflow/bot-server-go/internal/util"
)

// Prints a new API token and the API_TOKEN_HASH value for it.
// Pass an existing token as the first argument to hash it instead.
func main() {
	token := ""
	if len(os.Args) > 1 {
		token = os.Args[1]
	} else {
		generated, err := util.GenerateToken()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		token = generated
	}

	fmt.Printf("API token:      %s\n", token)
	fmt.Printf("API_TOKEN_HASH: %s\n", util.HashToken(token))
}
