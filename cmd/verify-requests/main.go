// Command verify-requests signs in with an injected session, opens the
// request popover for an inventory item and fills the request form, with the
// inventory and location endpoints answered from fixtures.
package main

import (
	"context"
	_ "embed"
	"time"

	"github.com/tomyan/uiverify/internal/cli"
	"github.com/tomyan/uiverify/internal/fixture"
	"github.com/tomyan/uiverify/internal/locator"
	"github.com/tomyan/uiverify/internal/scenario"
	"github.com/tomyan/uiverify/internal/wait"
)

//go:embed requests.yaml
var requestsFixture []byte

const item = "Aceite Motor"

func main() {
	cli.Main(cli.Program{
		Name:    "verify-requests",
		Fixture: requestsFixture,
		Build:   requestsScenario,
	})
}

func requestsScenario(set *fixture.Set) scenario.Scenario {
	return scenario.Scenario{
		Name:  "requests",
		Mocks: set.Rules(),
		State: set.Entries(),
		Ready: locator.Text("Mi inventario"),
		Body:  requestsFlow,
	}
}

func requestsFlow(ctx context.Context, env *scenario.Env) error {
	if err := env.Wait.ExpectVisible(ctx, locator.Text(item)); err != nil {
		return err
	}

	// The popover trigger is the row's only button (an icon).
	row := locator.Role("row", "").Filter(item)
	if err := env.Driver.Click(ctx, row.Locator(locator.Role("button", ""))); err != nil {
		return err
	}
	request := locator.Role("button", "Solicitar")
	if err := env.Wait.ExpectVisible(ctx, request); err != nil {
		return err
	}
	if err := env.Driver.Click(ctx, request); err != nil {
		return err
	}
	env.Logger.Info().Str("item", item).Msg("request added")

	if err := env.Session.Navigate(ctx, env.URL("/solicitudes/creadas")); err != nil {
		return err
	}
	if err := env.Wait.ExpectVisible(ctx, locator.Text(item)); err != nil {
		return err
	}

	if err := env.Driver.SelectOption(ctx, locator.Role("combobox", ""), locator.Role("option", "Taller Principal")); err != nil {
		return err
	}
	comment := locator.Placeholder("Agregue un comentario...")
	if err := env.Driver.Fill(ctx, comment, "Necesito esto urgente"); err != nil {
		return err
	}
	if err := env.Wait.ExpectText(ctx, locator.Role("combobox", ""), "Taller Principal", wait.Timeout(2*time.Second)); err != nil {
		return err
	}

	_, err := env.Snapshot(ctx, "requests_filled")
	return err
}
