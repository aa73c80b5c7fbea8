package proxy

import "syscall"

// setPdeathsig has the kernel kill the child if the proxy dies without a
// chance to forward anything, e.g. on SIGKILL.
func setPdeathsig(attr *syscall.SysProcAttr) {
	attr.Pdeathsig = syscall.SIGKILL
}
