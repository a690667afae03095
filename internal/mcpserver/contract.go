package mcpserver

// DeckFormatContract describes the Markdown deck format that LLM consumers
// should follow when creating or updating documents.
const DeckFormatContract = `# mdeck Deck Format Contract

Every Markdown document stored in mdeck is a tree of flashcard decks. Each
document MUST follow this structure.

## Structure

` + "```" + `markdown
# Root deck name (1234)

Optional deck description. ` + "`{=:tag-one, tag-two:=}`" + `

## Question of the first note (note-id)

Answer of the first note.

## Subdeck: Child deck

### Question of a note in the child deck

First line of the answer.
` + "```" + `

## Rules

1. **Root deck.** The first deck heading uses exactly one ` + "`#`" + ` (or the
   configured initial heading depth). Text before it is ignored. A root deck
   heading must not carry the ` + "`Subdeck: `" + ` prefix.
2. **Subdecks** are headings prefixed with ` + "`Subdeck: `" + `, one level below
   their parent deck. Their full name is ` + "`Parent::Child`" + `. Do not put
   ` + "`::`" + ` in deck titles yourself.
3. **Notes** are headings one level below the deck they belong to. The heading
   text is the question; the lines below it are the answer. A note heading may
   also sit at the level of an ancestor deck, which continues that deck.
4. **Multi-line questions.** Put extra question lines under the heading and end
   them with a line containing only ` + "`---`" + `. Everything after the separator
   is the answer. Only the first ` + "`---`" + ` of a note is a separator.
5. **Ids.** A trailing ` + "`(digits)`" + ` on a deck heading and a trailing
   ` + "`(id)`" + ` on a note heading are stable identifiers. Omit them for new
   decks and notes; keep them when editing existing ones.
6. **Tags** are written as ` + "`{=:tag, other tag:=}`" + ` anywhere in a deck
   description, question or answer. Spaces inside a tag become underscores.
   Notes inherit the tags of their deck and all ancestor decks.
7. **File paths** end with ` + "`.md`" + ` and use forward slashes. Encoding is
   UTF-8 with a trailing newline.

## Assets & Images

- Upload assets via the ` + "`upload_asset`" + ` tool. It returns a ` + "`markdownImage`" + ` field ready to paste into a note.
- Assets are stored in the shared ` + "`assets/`" + ` directory at the vault root (flat, no sub-folders).
- Image paths are resolved relative to the document, so a document in a sub-folder
  references ` + "`../assets/filename.png`" + `.
- An optional size suffix is supported: ` + "`![diagram](assets/d.png){ width=400 }`" + `.
- Supported formats: png, jpg, jpeg, gif, webp, svg, pdf.

## Example

` + "```" + `markdown
# Go

Core language notes. ` + "`{=:go:=}`" + `

## What is a goroutine?

A function running concurrently with other goroutines in the same address space.

## Subdeck: Channels

### What does a send on a nil channel do?

Blocks forever. ` + "`{=:gotcha:=}`" + `

### What is printed?

` + "```go" + `
ch := make(chan int, 1)
ch <- 1
fmt.Println(len(ch))
` + "```" + `

---

` + "`1`" + `
` + "```" + `
`
