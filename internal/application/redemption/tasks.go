package redemption

import (
	"fmt"

	"github.com/go-redemption-api/internal/domain"
	"github.com/go-redemption-api/internal/pkg/id"
)

func linkTask(issued *domain.IssuedLink, ev *domain.Event) domain.DeliveryTask {
	return domain.DeliveryTask{
		TaskID:  id.New(),
		Kind:    domain.TaskLink,
		Phone:   issued.Link.Phone,
		Text:    fmt.Sprintf("You have %d ticket(s) for %s. Add your attendees here: %s", issued.Link.TicketCount, ev.Title, issued.URL),
		Payload: issued.URL,
	}
}

func ticketTask(a domain.TicketAllocation, ev *domain.Event) domain.DeliveryTask {
	return domain.DeliveryTask{
		TaskID:  id.New(),
		Kind:    domain.TaskTicket,
		Phone:   a.Phone,
		Name:    a.Name,
		Text:    fmt.Sprintf("Hi %s, your ticket for %s at %s. Show this code at the entrance.", a.Name, ev.Title, ev.Venue),
		Payload: "ticket:" + a.AllocationID,
	}
}

func voucherTask(code string, a domain.Attendee, ev *domain.Event) domain.DeliveryTask {
	return domain.DeliveryTask{
		TaskID:  id.New(),
		Kind:    domain.TaskVoucher,
		Phone:   a.Phone,
		Name:    a.Name,
		Text:    fmt.Sprintf("Hi %s, voucher %s is yours for %s. Show this code at the venue.", a.Name, code, ev.Title),
		Payload: "voucher:" + code + ":" + a.Phone,
	}
}
