// Command conclave serves the Conclave Realm companion API.
package main

import (
	"context"
	"os"

	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/app"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/app/bootstrap"
)

func main() {
	if err := app.Run(context.Background(), bootstrap.Hooks); err != nil {
		os.Exit(1)
	}
}
