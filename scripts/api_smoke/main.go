package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"

	"github.com/openflock/flockbase/twitter"
	"github.com/openflock/flockbase/utils/dotenv"
)

// Manual smoke check for the api client: looks one user up by screen name
// and prints the first page of their timeline. Needs real credentials in
// the environment, so this is a script rather than a test.

func prettyPrint(i interface{}) string {
	s, _ := json.MarshalIndent(i, "", "\t")
	return string(s)
}

func main() {
	name := flag.String("name", "jack", "screen name to look up")
	flag.Parse()

	if err := dotenv.LoadDotEnvs(); err != nil {
		panic(err)
	}

	ctx := context.Background()
	creds, err := twitter.LoadCredentialsFromEnv(ctx)
	if err != nil {
		panic(err)
	}
	pool, err := twitter.NewCredentialPool(creds)
	if err != nil {
		panic(err)
	}
	client := twitter.NewClient(http.DefaultClient, pool)

	users, err := client.LookupUsersByScreenNames(ctx, []string{*name})
	if err != nil {
		panic(err)
	}
	fmt.Println(prettyPrint(users))
	if len(users) == 0 {
		return
	}

	pager := client.UserTimelinePager(ctx, users[0].Id, 0, 20)
	if pager.Next() {
		fmt.Println(prettyPrint(pager.Tweets()))
	}
	if err := pager.Err(); err != nil {
		panic(err)
	}
}
