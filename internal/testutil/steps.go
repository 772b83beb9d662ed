package testutil

import "testing"

// Section, Given, When and Then narrate a scenario in verbose test output.
func Section(t testing.TB, name string) {
	t.Helper()
	t.Logf("=== %s ===", name)
}

func Given(t testing.TB, context string) {
	t.Helper()
	t.Logf("GIVEN: %s", context)
}

func When(t testing.TB, action string) {
	t.Helper()
	t.Logf("WHEN: %s", action)
}

func Then(t testing.TB, expectation string) {
	t.Helper()
	t.Logf("THEN: %s", expectation)
}
