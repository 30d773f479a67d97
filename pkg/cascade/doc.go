// Package cascade removes an organization and everything that depends on it.
//
// Tables declare edges: every org-scoped table has an edge to the
// organization through orgId, and tables may declare child edges such as
// tasks.projectId -> projects. NewGraph rejects edges to unknown tables and
// cycles.
//
// Removal runs in three steps:
//
//  1. One transaction stamps RemovingAt and deletes the organization's
//     memberships, invites and join requests. Failure aborts the removal.
//  2. Dependent document ids are resolved top-down and deleted deepest
//     table first, in batches. A failing batch is retried row by row;
//     rows that still fail are logged and skipped.
//  3. The organization row is deleted once no rows were skipped.
//
// Every step is idempotent, so Resume can finish an interrupted or partial
// removal. Cascade always hard-deletes, whatever a table's soft-delete
// setting.
package cascade
