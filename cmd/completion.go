package cmd

import (
	"fmt"
	"os"
)

// Completion outputs shell completion scripts
func Completion(shell string) {
	switch shell {
	case "bash":
		fmt.Print(bashCompletion)
	case "zsh":
		fmt.Print(zshCompletion)
	case "fish":
		fmt.Print(fishCompletion)
	default:
		fmt.Fprintf(os.Stderr, "Unknown shell: %s\nSupported: bash, zsh, fish\n", shell)
		os.Exit(1)
	}
}

const bashCompletion = `_vaultkey() {
    local cur prev words cword
    _init_completion || return

    local commands="init status key passwd kdf meta settings keyring token compact help completion"

    if [[ $cword -eq 1 ]]; then
        COMPREPLY=($(compgen -W "$commands" -- "$cur"))
        return
    fi

    case "$prev" in
        --db|--keyfile|--new-keyfile|--import)
            _filedir
            return
            ;;
        --tier)
            COMPREPLY=($(compgen -W "modern legacy" -- "$cur"))
            return
            ;;
        --algorithm)
            COMPREPLY=($(compgen -W "argon2 aes" -- "$cur"))
            return
            ;;
        --cipher)
            COMPREPLY=($(compgen -W "aes256-gcm chacha20-poly1305" -- "$cur"))
            return
            ;;
    esac

    local cmd="${words[1]}"
    case "$cmd" in
        init)
            COMPREPLY=($(compgen -W "--db --name --description --no-password --keyfile --generate-keyfile --token --advanced --algorithm --rounds --memory --parallelism --time --tier --yes" -- "$cur"))
            ;;
        key)
            COMPREPLY=($(compgen -W "--db --keyfile --new-password --remove-password --new-keyfile --generate-keyfile --remove-keyfile --add-token --remove-token --yes" -- "$cur"))
            ;;
        kdf)
            COMPREPLY=($(compgen -W "--db --keyfile --simple --advanced --time --tier --algorithm --rounds --memory --parallelism --benchmark --yes" -- "$cur"))
            ;;
        meta)
            COMPREPLY=($(compgen -W "--db --keyfile --name --description --username --history-items --history-size --recycle-bin --yes" -- "$cur"))
            ;;
        settings)
            COMPREPLY=($(compgen -W "--db --keyfile --cipher --import --export --yes" -- "$cur"))
            ;;
        keyring)
            COMPREPLY=($(compgen -W "save delete status" -- "$cur"))
            ;;
        token)
            COMPREPLY=($(compgen -W "enroll remove status --slot --yes" -- "$cur"))
            ;;
        help)
            COMPREPLY=($(compgen -W "$commands" -- "$cur"))
            ;;
        completion)
            COMPREPLY=($(compgen -W "bash zsh fish" -- "$cur"))
            ;;
        *)
            COMPREPLY=($(compgen -W "--db --keyfile" -- "$cur"))
            ;;
    esac
}

complete -F _vaultkey vaultkey
`

const zshCompletion = `#compdef vaultkey

_vaultkey() {
    local -a commands
    commands=(
        'init:Create a new database'
        'status:Show database status'
        'key:Change the master key components'
        'passwd:Change the database password'
        'kdf:Show or change key derivation settings'
        'meta:Change general database information'
        'settings:Preview or apply database settings'
        'keyring:Manage password in OS keyring'
        'token:Manage the software challenge-response token'
        'compact:Compact database to reclaim disk space'
        'help:Show help for a command'
        'completion:Generate shell completions'
    )

    _arguments -C \
        '1: :->command' \
        '*: :->args'

    case "$state" in
        command)
            _describe -t commands 'vaultkey commands' commands
            ;;
        args)
            case "${words[2]}" in
                init)
                    _arguments \
                        '--db[Database file]:file:_files' \
                        '--name[Database name]:name:' \
                        '--description[Database description]:text:' \
                        '--no-password[Create without a password]' \
                        '--keyfile[Use an existing key file]:file:_files' \
                        '--generate-keyfile[Generate a new key file]:name:' \
                        '--token[Add the software token]' \
                        '--advanced[Choose KDF parameters manually]' \
                        '--algorithm[KDF algorithm]:algorithm:(argon2 aes)' \
                        '--rounds[KDF rounds]:rounds:' \
                        '--memory[Argon2 memory in KiB]:kib:' \
                        '--parallelism[Argon2 threads]:threads:' \
                        '--time[Target decryption time in ms]:ms:' \
                        '--tier[Compatibility tier]:tier:(modern legacy)' \
                        '--yes[Accept all warnings]'
                    ;;
                key)
                    _arguments \
                        '--db[Database file]:file:_files' \
                        '--keyfile[Current key file]:file:_files' \
                        '--new-password[Set a new password]' \
                        '--remove-password[Remove the password]' \
                        '--new-keyfile[Use a new key file]:file:_files' \
                        '--generate-keyfile[Generate a new key file]:name:' \
                        '--remove-keyfile[Remove the key file]' \
                        '--add-token[Add the software token]' \
                        '--remove-token[Remove the software token]' \
                        '--yes[Accept all warnings]'
                    ;;
                kdf)
                    _arguments \
                        '--db[Database file]:file:_files' \
                        '--keyfile[Current key file]:file:_files' \
                        '--simple[Derive parameters from the decryption time]' \
                        '--advanced[Choose parameters manually]' \
                        '--time[Target decryption time in ms]:ms:' \
                        '--tier[Compatibility tier]:tier:(modern legacy)' \
                        '--algorithm[KDF algorithm]:algorithm:(argon2 aes)' \
                        '--rounds[KDF rounds]:rounds:' \
                        '--memory[Argon2 memory in KiB]:kib:' \
                        '--parallelism[Argon2 threads]:threads:' \
                        '--benchmark[Calibrate rounds to the decryption time]' \
                        '--yes[Accept all warnings]'
                    ;;
                settings)
                    _arguments \
                        '--db[Database file]:file:_files' \
                        '--keyfile[Current key file]:file:_files' \
                        '--cipher[Body cipher]:cipher:(aes256-gcm chacha20-poly1305)' \
                        '--import[General settings YAML]:file:_files' \
                        '--export[Print general settings as YAML]' \
                        '--yes[Apply without asking]'
                    ;;
                keyring)
                    _values 'subcommand' save delete status
                    ;;
                token)
                    _values 'subcommand' enroll remove status
                    ;;
                help)
                    _describe -t commands 'vaultkey commands' commands
                    ;;
                completion)
                    _values 'shell' bash zsh fish
                    ;;
                *)
                    _arguments \
                        '--db[Database file]:file:_files' \
                        '--keyfile[Current key file]:file:_files'
                    ;;
            esac
            ;;
    esac
}

_vaultkey "$@"
`

const fishCompletion = `# vaultkey fish completions

set -l commands init status key passwd kdf meta settings keyring token compact help completion

complete -c vaultkey -f

# Commands
complete -c vaultkey -n "not __fish_seen_subcommand_from $commands" -a init -d 'Create a new database'
complete -c vaultkey -n "not __fish_seen_subcommand_from $commands" -a status -d 'Show database status'
complete -c vaultkey -n "not __fish_seen_subcommand_from $commands" -a key -d 'Change master key components'
complete -c vaultkey -n "not __fish_seen_subcommand_from $commands" -a passwd -d 'Change database password'
complete -c vaultkey -n "not __fish_seen_subcommand_from $commands" -a kdf -d 'Key derivation settings'
complete -c vaultkey -n "not __fish_seen_subcommand_from $commands" -a meta -d 'General database information'
complete -c vaultkey -n "not __fish_seen_subcommand_from $commands" -a settings -d 'Preview or apply settings'
complete -c vaultkey -n "not __fish_seen_subcommand_from $commands" -a keyring -d 'Manage password in OS keyring'
complete -c vaultkey -n "not __fish_seen_subcommand_from $commands" -a token -d 'Manage software token'
complete -c vaultkey -n "not __fish_seen_subcommand_from $commands" -a compact -d 'Compact database'
complete -c vaultkey -n "not __fish_seen_subcommand_from $commands" -a help -d 'Show help'
complete -c vaultkey -n "not __fish_seen_subcommand_from $commands" -a completion -d 'Generate completions'

# common flags
complete -c vaultkey -n "__fish_seen_subcommand_from $commands" -l db -r -F -d 'Database file'
complete -c vaultkey -n "__fish_seen_subcommand_from $commands" -l keyfile -r -F -d 'Key file'
complete -c vaultkey -n "__fish_seen_subcommand_from $commands" -l yes -d 'Accept all warnings'

# kdf flags
complete -c vaultkey -n "__fish_seen_subcommand_from init kdf" -l tier -x -a "modern legacy" -d 'Compatibility tier'
complete -c vaultkey -n "__fish_seen_subcommand_from init kdf" -l algorithm -x -a "argon2 aes" -d 'KDF algorithm'
complete -c vaultkey -n "__fish_seen_subcommand_from init kdf" -l time -x -d 'Target decryption time in ms'
complete -c vaultkey -n "__fish_seen_subcommand_from init kdf" -l rounds -x -d 'KDF rounds'
complete -c vaultkey -n "__fish_seen_subcommand_from init kdf" -l memory -x -d 'Argon2 memory in KiB'
complete -c vaultkey -n "__fish_seen_subcommand_from init kdf" -l parallelism -x -d 'Argon2 threads'
complete -c vaultkey -n "__fish_seen_subcommand_from init kdf" -l advanced -d 'Choose parameters manually'
complete -c vaultkey -n "__fish_seen_subcommand_from kdf" -l simple -d 'Derive parameters from the decryption time'
complete -c vaultkey -n "__fish_seen_subcommand_from kdf" -l benchmark -d 'Calibrate rounds'

# key flags
complete -c vaultkey -n "__fish_seen_subcommand_from key" -l new-password -d 'Set a new password'
complete -c vaultkey -n "__fish_seen_subcommand_from key" -l remove-password -d 'Remove the password'
complete -c vaultkey -n "__fish_seen_subcommand_from key" -l new-keyfile -r -F -d 'Use a new key file'
complete -c vaultkey -n "__fish_seen_subcommand_from init key" -l generate-keyfile -x -d 'Generate a new key file'
complete -c vaultkey -n "__fish_seen_subcommand_from key" -l remove-keyfile -d 'Remove the key file'
complete -c vaultkey -n "__fish_seen_subcommand_from key" -l add-token -d 'Add the software token'
complete -c vaultkey -n "__fish_seen_subcommand_from key" -l remove-token -d 'Remove the software token'

# settings flags
complete -c vaultkey -n "__fish_seen_subcommand_from settings" -l cipher -x -a "aes256-gcm chacha20-poly1305" -d 'Body cipher'
complete -c vaultkey -n "__fish_seen_subcommand_from settings" -l import -r -F -d 'General settings YAML'
complete -c vaultkey -n "__fish_seen_subcommand_from settings" -l export -d 'Print general settings as YAML'

# keyring and token subcommands
complete -c vaultkey -n "__fish_seen_subcommand_from keyring" -a "save delete status"
complete -c vaultkey -n "__fish_seen_subcommand_from token" -a "enroll remove status"

# help completions
complete -c vaultkey -n "__fish_seen_subcommand_from help" -a "$commands"

# completion completions
complete -c vaultkey -n "__fish_seen_subcommand_from completion" -a "bash zsh fish"
`
