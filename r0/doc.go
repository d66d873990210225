// Package r0 declares the client-server operations served under
// /_matrix/client/r0.
//
// Each operation is a package-level *mxapi.Endpoint whose type parameters
// carry its path, query, body and response shapes:
//
//	req, err := r0.RedactEvent.NewRequest(r0.RedactEventPath{
//		RoomID:  roomID,
//		EventID: eventID,
//		TxnID:   txnID,
//	}, mxapi.Empty{}, r0.RedactEventBody{})
package r0

// Prefix is the path prefix shared by every operation in this package.
const Prefix = "/_matrix/client/r0"
