//go:build !darwin

package main

import "fmt"

func metalReport(string) error {
	return fmt.Errorf("requires darwin")
}
