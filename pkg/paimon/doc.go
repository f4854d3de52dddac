// Package paimon defines the platform-neutral protocol shared by the kernel,
// drivers and modules: events, module and driver contracts, subscriptions,
// commands, outbound operations and the runtime services modules resolve.
package paimon
