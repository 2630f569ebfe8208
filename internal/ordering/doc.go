// Package ordering assigns gapless, per-folder display orders to images.
//
// Each folder has an in-memory counter seeded from storage (max order + 1,
// or 0 for an empty folder). [Service.Assign] and [Service.NextOrder] share
// a per-folder gate; [Service.Recount] takes it exclusively, so a recount
// never observes an assignment whose order was handed out but not yet
// written. After a recount the ordered images of the folder hold exactly
// 0..n-1 and the counter restarts at n.
package ordering
