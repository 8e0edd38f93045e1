//go:build llama

package manager

// cgo link directives for the in-process llama adapter: an rpath of $ORIGIN
// so libllama.so is found next to the binary, and -L../../bin for link time.
/*
#cgo LDFLAGS: -Wl,-rpath,'$ORIGIN' -L${SRCDIR}/../../bin -lllama
*/
import "C"
