package mcpserver

// NoteFormatContract describes the companion note format that LLM
// consumers should follow when reading or editing notes bound to sources.
const NoteFormatContract = `# Tether Companion Note Format

Every binary file in the vault (PDF, image, video, ...) may have one
companion Markdown note carrying its tags, links and metadata.

## Placement

The ` + "`" + `notes_folder` + "`" + ` setting decides where a note lives:

- empty: next to the source (` + "`" + `Media/clip.mp4` + "`" + ` -> ` + "`" + `Media/clip.md` + "`" + `)
- ` + "`" + `./Sub` + "`" + `: in a sub-folder of the source's folder (` + "`" + `Media/Sub/clip.md` + "`" + `)
- ` + "`" + `Notes` + "`" + `: in one central folder (` + "`" + `Notes/clip.md` + "`" + `); name clashes get
  ` + "`" + ` (1)` + "`" + `, ` + "`" + ` (2)` + "`" + `, ... suffixes (` + "`" + `Notes/clip (1).md` + "`" + `)

## Binding

` + "```" + `markdown
---
source: "[[Media/clip.mp4]]"
---
![[clip.mp4]]
` + "```" + `

1. The ` + "`" + `source` + "`" + ` frontmatter field declares which file the note belongs to.
   It is mandatory for central placement and optional otherwise.
2. The value is the full vault path of the source, optionally wrapped in ` + "`" + `[[...]]` + "`" + `.
3. **Never edit or remove the ` + "`" + `source` + "`" + ` field** of an existing note: the binding
   would be lost and a duplicate note could be created.
4. Everything after the frontmatter is free Markdown. Add tags, ` + "`" + `[[wikilinks]]` + "`" + `
   and other frontmatter keys freely.

## Tools

- ` + "`" + `find_companion` + "`" + ` returns the note of a source, if any.
- ` + "`" + `create_companion` + "`" + ` / ` + "`" + `remove_companion` + "`" + ` bind and unbind sources. Removed notes
  go to the vault trash and can be restored by hand.
- ` + "`" + `list_companions` + "`" + ` lists the sources of a folder with their notes.
- ` + "`" + `upload_source` + "`" + ` stores a new file and, with auto-create on, its note.
`
