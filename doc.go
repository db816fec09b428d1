/*
Package fowl implements a document layer on top of an ordered transactional
key-value store (Bolt, Badger or an in-memory engine).

We implement:

1. Documents, nested maps and lists stored one key per leaf value, so that
a partial update touches only the fields it mentions.

2. Transactions that queue operations and run them all inside a single atomic
unit of the underlying store on Commit, handing out futures for the results.

3. Secondary indexes on document fields, with range reads for equality and
the four inequality operators.

4. Queries that narrow a candidate set one condition at a time, consulting
an index for the first condition when one exists.

# Technical Details

**Keys.**
All keys are encoded with the tuple layer (package tuple), so byte order of
keys matches the order of their elements. A document field lives at

	collection... ++ id ++ field...

and a document is read back by scanning the range of its path.

**Values.**
A leaf value is encoded as a tuple of a type tag followed by a payload:

	0  string     raw bytes
	1  integer    int64
	2  decimal    canonical string form
	3  boolean    1 or 0
	4  date       year, month, day, hour, minute, second, millisecond (UTC)
	5  composite  msgpack blob
	6  null       no payload

**Indexes.**
Index entries live under the reserved "__ind" namespace:

	"__ind" ++ collection... ++ field... ++ value ++ id

The value stored under an index key is the encoded field value. Numeric
values are stored as float64 inside index keys, so integers and decimals
order together.

Index metadata lives under "__ind", "__meta" and is loaded at Open; each
transaction captures the snapshot current at its creation.

**Stale index entries.**
By default, updating an indexed field leaves the entry for the old value in
place, and removing a document leaves its entries behind. Readers tolerate
this because every index hit is re-checked against the document. Set
Options.IndexCleanup to have Put and Remove delete superseded entries.
*/
package fowl
