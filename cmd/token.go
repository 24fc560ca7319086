package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/illarion/vaultkey/internal/hardware"
)

// TokenEnroll programs a new secret into a software token slot. Databases
// bound to the previous secret of that slot can no longer be opened.
func TokenEnroll(slot int, yes bool) {
	if slot == 0 {
		slot = conf.TokenSlot
	}
	token := hardware.NewSoftToken()

	for _, s := range token.Slots() {
		if s.Number == slot && !yes {
			fmt.Printf("Slot %d is already enrolled. Databases using it will no longer open.\n", slot)
			if !Confirm("Replace its secret? [y/N]: ", false) {
				fmt.Println("Cancelled")
				return
			}
		}
	}

	if err := token.Enroll(slot); err != nil {
		HandleError(err)
	}
	fmt.Printf("Software token slot %d enrolled\n", slot)
}

// TokenRemove deletes the secret of a software token slot
func TokenRemove(slot int, yes bool) {
	if slot == 0 {
		slot = conf.TokenSlot
	}
	if !yes && !Confirm(fmt.Sprintf("Remove software token slot %d? Databases using it will no longer open. [y/N]: ", slot), false) {
		fmt.Println("Cancelled")
		return
	}

	if err := hardware.NewSoftToken().Remove(slot); err != nil {
		if errors.Is(err, hardware.ErrNotDetected) {
			fmt.Printf("Slot %d is not enrolled\n", slot)
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	fmt.Printf("Software token slot %d removed\n", slot)
}

// TokenStatus lists enrolled software token slots
func TokenStatus() {
	slots := hardware.NewSoftToken().Slots()
	if len(slots) == 0 {
		fmt.Println("No software token slots enrolled")
		return
	}
	for _, s := range slots {
		marker := ""
		if s.Number == conf.TokenSlot {
			marker = " (default)"
		}
		fmt.Printf("  %s%s\n", s, marker)
	}
}
