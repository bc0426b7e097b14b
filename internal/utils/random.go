package utils

import (
    "crypto/rand"
    "encoding/hex"
    "fmt"
    "math/big"
)

const alphanumUpper = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandomHex returns n random bytes hex encoded.
func RandomHex(n int) (string, error) {
    buf := make([]byte, n)
    if _, err := rand.Read(buf); err != nil {
        return "", err
    }
    return hex.EncodeToString(buf), nil
}

// RandomDigits returns a uniformly random numeric string of length n with
// leading zeros preserved.
func RandomDigits(n int) (string, error) {
    max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
    v, err := rand.Int(rand.Reader, max)
    if err != nil {
        return "", err
    }
    return fmt.Sprintf("%0*d", n, v.Int64()), nil
}

// RandomAlnumUpper returns n characters drawn uniformly from A-Z and 0-9.
func RandomAlnumUpper(n int) (string, error) {
    out := make([]byte, n)
    limit := big.NewInt(int64(len(alphanumUpper)))
    for i := range out {
        idx, err := rand.Int(rand.Reader, limit)
        if err != nil {
            return "", err
        }
        out[i] = alphanumUpper[idx.Int64()]
    }
    return string(out), nil
}
