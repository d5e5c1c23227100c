package exchange

import "fmt"

// RejectKind classifies why the admission gate turned a request down.
type RejectKind string

const (
	KindNotFound            RejectKind = "not_found"
	KindSelfRequest         RejectKind = "self_request"
	KindNoInventory         RejectKind = "no_inventory"
	KindDuplicate           RejectKind = "duplicate"
	KindRateLimited         RejectKind = "rate_limited"
	KindNotificationFailure RejectKind = "notification_failure"
)

// Rejection is the typed error every gate failure returns. Reason is the
// user-facing message; Cause (mailer errors) stays server-side.
type Rejection struct {
	Kind   RejectKind
	Reason string
	Cause  error
}

func (r *Rejection) Error() string {
	if r.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", r.Kind, r.Reason, r.Cause)
	}
	return fmt.Sprintf("%s: %s", r.Kind, r.Reason)
}

func (r *Rejection) Unwrap() error { return r.Cause }

func rejectNotFound() *Rejection {
	return &Rejection{Kind: KindNotFound, Reason: "El libro no existe o ya no está disponible."}
}

func rejectSelfRequest() *Rejection {
	return &Rejection{Kind: KindSelfRequest, Reason: "No podés pedir un intercambio por tu propio libro."}
}

func rejectNoInventory() *Rejection {
	return &Rejection{Kind: KindNoInventory, Reason: "Necesitás ofrecer al menos un libro para pedir intercambios."}
}

func rejectDuplicate() *Rejection {
	return &Rejection{Kind: KindDuplicate, Reason: "Ya pediste este libro hace poco. Esperá unos días antes de volver a pedirlo."}
}

func rejectRateLimited() *Rejection {
	return &Rejection{Kind: KindRateLimited, Reason: "Alcanzaste el límite diario de pedidos. Probá de nuevo más tarde."}
}

func rejectNotificationFailure(cause error) *Rejection {
	return &Rejection{
		Kind:   KindNotificationFailure,
		Reason: "No pudimos avisar al dueño del libro. Probá de nuevo más tarde.",
		Cause:  cause,
	}
}
