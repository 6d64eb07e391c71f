// Command verify-tabs opens the records view with an injected superuser
// session and switches to the warranties tab.
package main

import (
	"context"
	_ "embed"
	"time"

	"github.com/tomyan/uiverify/internal/cli"
	"github.com/tomyan/uiverify/internal/driver"
	"github.com/tomyan/uiverify/internal/fixture"
	"github.com/tomyan/uiverify/internal/locator"
	"github.com/tomyan/uiverify/internal/scenario"
	"github.com/tomyan/uiverify/internal/wait"
)

//go:embed tabs.yaml
var tabsFixture []byte

func main() {
	cli.Main(cli.Program{
		Name:    "verify-tabs",
		Fixture: tabsFixture,
		Build:   tabsScenario,
	})
}

func tabsScenario(set *fixture.Set) scenario.Scenario {
	return scenario.Scenario{
		Name:  "tabs",
		Mocks: set.Rules(),
		State: set.Entries(),
		Body:  tabsFlow,
	}
}

func tabsFlow(ctx context.Context, env *scenario.Env) error {
	if err := env.Session.Navigate(ctx, env.URL("/registros")); err != nil {
		return err
	}

	// A loading overlay can stay mounted over the view.
	if _, err := env.Driver.RemoveOverlay(ctx, locator.CSS(".fixed.inset-0")); err != nil {
		return err
	}

	if err := env.Wait.ExpectVisible(ctx, locator.Role("heading", "Registros"), wait.Timeout(5*time.Second)); err != nil {
		return err
	}
	records := locator.Role("tab", "Registros")
	warranties := locator.Role("tab", "Garantías")
	if err := env.Wait.ExpectVisible(ctx, records); err != nil {
		return err
	}
	if err := env.Wait.ExpectVisible(ctx, warranties); err != nil {
		return err
	}

	if err := env.Driver.Click(ctx, warranties, driver.Force()); err != nil {
		return err
	}
	if err := env.Wait.ExpectVisible(ctx, locator.Role("heading", "Formulario Garantías")); err != nil {
		return err
	}

	_, err := env.Snapshot(ctx, "tabs_verification")
	return err
}
