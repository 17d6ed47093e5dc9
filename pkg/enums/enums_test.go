package enums

import (
	"errors"
	"testing"
)

func TestParsePaymentMethod(t *testing.T) {
	for _, raw := range []string{"credit_card", "pix", "boleto"} {
		got, err := ParsePaymentMethod(raw)
		if err != nil {
			t.Fatalf("ParsePaymentMethod(%q) unexpected error: %v", raw, err)
		}
		if got.String() != raw {
			t.Fatalf("expected %q got %q", raw, got)
		}
	}
	if _, err := ParsePaymentMethod("cash"); err == nil {
		t.Fatal("expected cash to be rejected")
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	cases := map[OrderStatus]bool{
		OrderStatusPending:    false,
		OrderStatusProcessing: false,
		OrderStatusShipped:    false,
		OrderStatusDelivered:  true,
		OrderStatusCancelled:  true,
	}
	for status, terminal := range cases {
		if status.IsTerminal() != terminal {
			t.Fatalf("status %s terminal=%v, want %v", status, status.IsTerminal(), terminal)
		}
	}
	if OrderStatus("canceled").IsValid() {
		t.Fatal("unexpected spelling accepted")
	}
}

func TestParseUserRoleAndReservationStatus(t *testing.T) {
	if role, err := ParseUserRole("admin"); err != nil || role != UserRoleAdmin {
		t.Fatalf("expected admin role, got %q err=%v", role, err)
	}
	if _, err := ParseUserRole("root"); err == nil {
		t.Fatal("expected unknown role to fail")
	}
	if status, err := ParseReservationStatus("committed"); err != nil || status != ReservationStatusCommitted {
		t.Fatalf("expected committed, got %q err=%v", status, err)
	}
	if PaymentStatus("settled").IsValid() {
		t.Fatal("settled is not a storefront payment status")
	}
}

func TestParseNotificationType(t *testing.T) {
	if kind, err := ParseNotificationType("shipping_update"); err != nil || kind != NotificationTypeShippingUpdate {
		t.Fatalf("expected shipping_update, got %q err=%v", kind, err)
	}
	if _, err := ParseNotificationType("compliance"); err == nil {
		t.Fatal("expected compliance to be rejected")
	}
}

func TestParseFailuresWrapUnknownValue(t *testing.T) {
	_, err := ParseOrderStatus("canceled")
	if !errors.Is(err, ErrUnknownValue) {
		t.Fatalf("expected ErrUnknownValue, got %v", err)
	}
	if err.Error() != `unknown enum value: order status "canceled"` {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestListsAreCopies(t *testing.T) {
	events := OrderEventTypes()
	events[0] = "tampered"
	if OrderEventTypes()[0] != EventOrderCreated {
		t.Fatal("caller mutated the event type list")
	}
	if len(DeadLetterReasons()) != 5 {
		t.Fatalf("expected five dead letter reasons, got %d", len(DeadLetterReasons()))
	}
}
