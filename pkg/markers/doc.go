/*
Package markers holds the boundary-condition markers placed on the base surface.

The Store owns the two marker lists, the placement mode and the id source.
All mutations are synchronous and immediately visible; every mutation also
publishes a Snapshot to subscribers so views can re-render without polling.

Ids come from an injected IDSource. The default Counter is owned by the
store instance, so independent stores never share or reuse ids.
*/
package markers
