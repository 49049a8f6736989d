// Package util provides small generic helpers shared by the pipekit packages.
package util
