//go:build !linux

package transport

func isNack(error) bool {
	return false
}
