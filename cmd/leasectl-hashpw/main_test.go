package main

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashPassword(t *testing.T) {
	hash, err := hashPassword("s3cret", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hashPassword error: %v", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")); err != nil {
		t.Errorf("hash does not verify: %v", err)
	}
	if _, err := hashPassword("", bcrypt.MinCost); err == nil {
		t.Error("empty password accepted")
	}
}

func TestFirstLine(t *testing.T) {
	got, err := firstLine(strings.NewReader("  hunter2  \nignored\n"))
	if err != nil {
		t.Fatalf("firstLine error: %v", err)
	}
	if got != "hunter2" {
		t.Errorf("firstLine = %q, want hunter2", got)
	}
}

func TestReadPasswordArgument(t *testing.T) {
	got, err := readPassword([]string{"fromarg"})
	if err != nil || got != "fromarg" {
		t.Errorf("readPassword = %q, %v", got, err)
	}
}
