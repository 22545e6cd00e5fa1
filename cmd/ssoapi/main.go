package main

import "github.com/drago-vuckovic/sso/cmd/ssoapi/cmd"

func main() {
	cmd.Execute()
}
