// Package signing produces and checks expo-signature header values:
// RSA PKCS #1 v1.5 SHA-256 signatures encoded as structured field dictionaries.
package signing
