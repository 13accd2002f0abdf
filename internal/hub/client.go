// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package hub

import "github.com/territoryrun/server/internal/model"

type (
	// Client is an actor on the Hub: a real WebSocket connection
	// (SocketClient) or a synthetic load-test connection (BotClient).
	// Grounded verbatim on server/client.go's interface shape.
	Client interface {
		// Close closes additional resources. Always called by the hub
		// goroutine.
		Close()

		// Data allows the Client to be added to the intrusive doubly
		// linked ClientList.
		Data() *ClientData

		// Destroy triggers client destruction. Only the Client itself calls
		// this (on a slow-consumer or socket-error path).
		Destroy()

		// Init starts the client's read/write goroutines. Always called by
		// the hub goroutine.
		Init()

		// Send enqueues an outbound message. Non-blocking: a client that
		// can't keep up gets destroyed rather than stalling the hub.
		Send(out Outbound)
	}

	// ClientData is the data every Client must embed.
	ClientData struct {
		Player   *model.Player
		Hub      *Hub
		Previous Client
		Next     Client
	}

	// ClientList is a doubly-linked list of Clients, iterable like:
	//   for c := list.First; c != nil; c = c.Data().Next {}
	// or, to remove while iterating:
	//   for c := list.First; c != nil; c = list.Remove(c) {}
	// Grounded verbatim on server/client.go: O(1) add/remove during the
	// hub's own iteration is worth the extra bookkeeping over a slice or
	// map, since despawn/disconnect happens on every tick.
	ClientList struct {
		First Client
		Last  Client
		Len   int
	}
)

func (list *ClientList) Add(client Client) {
	data := client.Data()
	if data.Previous != nil || data.Next != nil {
		panic("hub: client already added")
	}

	if list.First == nil {
		list.First = client
	} else if list.Last == nil {
		panic("hub: invalid client list state")
	} else {
		list.Last.Data().Next = client
		data.Previous = list.Last
	}

	list.Last = client
	list.Len++
}

func (list *ClientList) Remove(client Client) (next Client) {
	data := client.Data()

	if data.Previous != nil {
		data.Previous.Data().Next = data.Next
	} else if list.First == client {
		list.First = data.Next
	} else {
		panic("hub: client already removed")
	}

	if data.Next != nil {
		data.Next.Data().Previous = data.Previous
	} else if list.Last == client {
		list.Last = data.Previous
	} else {
		panic("hub: client already removed")
	}

	list.Len--
	next = data.Next
	data.Next = nil
	data.Previous = nil
	return
}
