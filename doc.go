// Package xmtpcore is the safe Go wrapper over the flat boundary layer in
// package ffi. It turns opaque handles into managed objects with idempotent
// Close methods and finalizer backstops, status codes into typed errors, and
// raw callback streams into Stream values that can be ended and released
// safely in any order.
//
// A Client is built through ClientBuilder with a Signer for the controlling
// account:
//
//	signer := xmtpcore.NewStaticSigner("0xabc...", privateSign)
//	client, err := xmtpcore.NewClientBuilder(signer).
//		Environment(xmtpcore.EnvironmentLocal).
//		DBPath("/var/lib/app/client.db").
//		Build()
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
// Conversations, messages, and streams obtained from the client each own
// their underlying handle; releasing them in any order is safe, and anything
// left unreleased is reclaimed by its finalizer.
package xmtpcore
