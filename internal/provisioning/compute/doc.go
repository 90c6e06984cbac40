// Package compute provisions the cluster's virtual machines: it clones them
// from the template, waits for them to boot, and discovers their addresses
// through the guest agent.
package compute
