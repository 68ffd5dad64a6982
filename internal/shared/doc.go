// Package shared holds helpers used by more than one package's tests.
//
// The testutil subpackage provides a scripted license server for driving
// the launcher over real HTTP, and a log capturing slog.Handler used to
// check what components log, in particular that license keys only ever
// appear masked.
//
//	srv := testutil.NewLicenseServer(t, "GOOD-KEY")
//	logger, logs := testutil.NewTestLogger(t)
//	...
//	logs.AssertNotLogged(t, "GOOD-KEY")
package shared
