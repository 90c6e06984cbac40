// Package retry paces repeated attempts at flaky hypervisor operations.
//
// [Do] runs an operation under a geometric backoff [Policy]. It backs the SSH
// dial to the Proxmox host and the boot-status polling loop, where the first
// few failures are expected and only persistence or a [PermanentError] should
// end the wait.
package retry
