// Package storage defines the persistence contract of the organization engine.
//
// # Overview
//
// The engine owns five kinds of rows: organizations, memberships, invites,
// join requests and org-scoped documents. Each kind has a focused repository
// interface:
//
//   - OrganizationRepo: organizations, slug lookup, removal bookkeeping
//   - MembershipRepo: (org, user) membership rows
//   - InviteRepo: invitations and token lookup
//   - JoinRequestRepo: join requests and pending lookup
//   - DocumentRepo: documents of every configured table
//
// These compose into Tx, the unit of work handed to callers by Store.WithTx:
//
//	err := store.WithTx(ctx, func(tx storage.Tx) error {
//		org, err := tx.GetOrganization(ctx, orgID)
//		if err != nil {
//			return err
//		}
//		return tx.DeleteMembership(ctx, memberID)
//	})
//
// A request either commits all of its writes or none of them.
//
// # Implementations
//
//   - memory: a single-lock in-process store with copy-on-write rollback,
//     used in tests and single-node development
//   - postgres: database/sql over lib/pq with serializable transactions
//
// # Errors
//
// Lookups of absent rows return ErrNotFound. Writes that violate a
// uniqueness constraint return ErrDuplicate. Deletes of absent rows succeed,
// which keeps cascade removal resumable.
package storage
