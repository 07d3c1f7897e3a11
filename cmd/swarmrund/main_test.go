package main

import "testing"

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	required := []string{"serve", "migrate"}
	for _, name := range required {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestBuildMigrateCmdIncludesUpAndStatus(t *testing.T) {
	cmd := buildMigrateCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	for _, name := range []string{"up", "status"} {
		if !names[name] {
			t.Fatalf("expected migrate subcommand %q to be registered", name)
		}
	}
}

func TestBuildServeCmdHasConfigFlags(t *testing.T) {
	cmd := buildServeCmd()
	if cmd.Flags().Lookup("config") == nil {
		t.Error("expected serve to register a --config flag")
	}
	if cmd.Flags().Lookup("env-file") == nil {
		t.Error("expected serve to register an --env-file flag")
	}
}
