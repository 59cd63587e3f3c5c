// Package testutil holds fixtures shared by the tests of several packages:
// a small rule tree with known behavior and a temp-dir store.
package testutil
